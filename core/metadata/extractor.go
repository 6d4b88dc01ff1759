package metadata

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/lukewaehner/KijayKolder-LinksHub/logger"

	"github.com/dhowden/tag"
)

// Extractor adapts Extract to the upload pipeline.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract never fails on bad input; the error is only ctx's.
func (x *Extractor) Extract(ctx context.Context, data []byte) (Extracted, error) {
	if err := ctx.Err(); err != nil {
		return Extracted{}, err
	}
	out, problems := Inspect(data)
	for _, p := range problems {
		logger.Debug("metadata parser stage failed", logger.ErrorField(p))
	}
	return out, nil
}

// Extract reads whatever tags and stream properties data carries. It does not
// modify data, performs no I/O and never panics; an unrecognized or
// unreadable file yields an empty record.
func Extract(data []byte) Extracted {
	out, _ := Inspect(data)
	return out
}

// Inspect is Extract plus the list of parser stages that failed.
func Inspect(data []byte) (out Extracted, problems []error) {
	defer func() {
		if r := recover(); r != nil {
			out = Extracted{}
			problems = append(problems, &ExtractionError{Stage: "panic", Err: fmt.Errorf("%v", r)})
		}
	}()

	format := DetectFormat(data)
	if format == "" {
		return Extracted{}, []error{&ExtractionError{Stage: "detect", Err: fmt.Errorf("unrecognized container")}}
	}
	out.Format = format

	run := func(stage string, read func([]byte, *Extracted) error) {
		if err := guard(read, data, &out); err != nil {
			problems = append(problems, &ExtractionError{Stage: stage, Err: err})
		}
	}

	if format != FormatWAVE {
		run("tags", readTags)
	}

	switch format {
	case FormatFLAC:
		run("flac", readFLAC)
	case FormatMPEG:
		run("mpeg", readMPEG)
	case FormatWAVE:
		run("wave", readWAVE)
	case FormatMPEG4:
		run("mp4", readMP4)
	case FormatOgg:
		run("ogg", readOgg)
	}
	return out, problems
}

// guard turns a panicking parser stage into an error so the fields gathered
// by earlier stages survive.
func guard(read func([]byte, *Extracted) error, data []byte, out *Extracted) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered: %v", r)
		}
	}()
	return read(data, out)
}

// DetectFormat names the container from its magic bytes, or returns "".
func DetectFormat(data []byte) string {
	body := data[id3v2Size(data):]
	switch {
	case bytes.HasPrefix(body, []byte("fLaC")):
		return FormatFLAC
	case len(body) >= 12 && bytes.Equal(body[0:4], []byte("RIFF")) && bytes.Equal(body[8:12], []byte("WAVE")):
		return FormatWAVE
	case len(body) >= 8 && bytes.Equal(body[4:8], []byte("ftyp")):
		return FormatMPEG4
	case bytes.HasPrefix(body, []byte("OggS")):
		return FormatOgg
	case len(body) >= 2 && body[0] == 0xFF && body[1]&0xE0 == 0xE0:
		if (body[1]>>1)&0x03 == 0 {
			return FormatAAC
		}
		return FormatMPEG
	case len(body) < len(data):
		// an ID3 tag followed by something we cannot sync on yet
		return FormatMPEG
	}
	return ""
}

// id3v2Size is the length of a leading ID3v2 tag, header and footer included.
func id3v2Size(data []byte) int {
	if len(data) < 10 || !bytes.HasPrefix(data, []byte("ID3")) {
		return 0
	}
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	total := 10 + size
	if data[5]&0x10 != 0 {
		total += 10
	}
	if total > len(data) {
		return len(data)
	}
	return total
}

func readTags(data []byte, out *Extracted) error {
	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return err
	}

	out.Title = clean(m.Title())
	out.Artist = clean(m.Artist())
	if out.Artist == "" {
		out.Artist = clean(m.AlbumArtist())
	}
	out.Album = clean(m.Album())
	out.Genre = firstValue(m.Genre())

	if y := m.Year(); y > 0 {
		out.Year = &y
	}
	if n, _ := m.Track(); n > 0 {
		out.TrackNumber = &n
	}
	if n, _ := m.Disc(); n > 0 {
		out.DiscNumber = &n
	}
	if p := m.Picture(); p != nil && len(p.Data) > 0 {
		out.CoverArt = &CoverArt{Data: p.Data, Format: pictureMIME(p.MIMEType, p.Data)}
	}
	return nil
}

func clean(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

// firstValue keeps the first entry of a multi-valued text tag.
func firstValue(s string) string {
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == 0 || r == ';' }) {
		if v := clean(part); v != "" {
			return v
		}
	}
	return ""
}

func pictureMIME(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	switch declared {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	}
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return "image/jpeg"
}

func setDuration(out *Extracted, seconds float64) {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return
	}
	d := math.Round(seconds)
	out.Duration = &d
}

// setAverageBitrate derives bits per second from the payload size and the
// unrounded duration.
func setAverageBitrate(out *Extracted, payloadBytes int, seconds float64) {
	if out.Bitrate != nil || seconds <= 0 || payloadBytes <= 0 {
		return
	}
	b := int(math.Round(float64(payloadBytes) * 8 / seconds))
	out.Bitrate = &b
}

func intPtr(v int) *int {
	return &v
}

// parseLeadingInt reads "3", "3/12" or "2019-05-01" style values.
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
