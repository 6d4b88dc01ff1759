package metadata

import (
	"math"

	"github.com/lukewaehner/KijayKolder-LinksHub/model"
)

// MaxWaveformPoints caps the envelope drawn by the player.
const MaxWaveformPoints = 100

// WaveformPoints is two points per second of audio, capped.
func WaveformPoints(durationSeconds int) int {
	n := durationSeconds * 2
	if n > MaxWaveformPoints {
		return MaxWaveformPoints
	}
	if n < 0 {
		return 0
	}
	return n
}

// Envelope summarizes data as points amplitudes in [0.1, 1.0]. It works on
// the raw container bytes rather than decoded samples, so it is a visual
// hint only, but the same input always yields the same envelope.
func Envelope(data []byte, points int) model.Waveform {
	if points <= 0 {
		return model.Waveform{}
	}
	out := make(model.Waveform, points)
	if len(data) == 0 {
		for i := range out {
			out[i] = 0.1
		}
		return out
	}

	raw := make([]float64, points)
	peak := 0.0
	for i := 0; i < points; i++ {
		start := i * len(data) / points
		end := (i + 1) * len(data) / points
		if end <= start {
			end = start + 1
		}
		if end > len(data) {
			end = len(data)
		}
		sum := 0.0
		for _, b := range data[start:end] {
			sum += math.Abs(float64(int(b) - 128))
		}
		raw[i] = sum / float64(end-start)
		if raw[i] > peak {
			peak = raw[i]
		}
	}

	for i, v := range raw {
		amp := 0.1
		if peak > 0 {
			amp += 0.9 * v / peak
		}
		out[i] = math.Round(amp*1000) / 1000
	}
	return out
}
