package metadata

import (
	"context"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractID3Tags(t *testing.T) {
	cover := pngBytes(t, color.RGBA{R: 255, A: 255})
	data := id3v23(
		id3Text("TIT2", "Real Title"),
		id3Text("TPE1", "Real Artist"),
		id3Text("TALB", "Real Album"),
		id3Text("TYER", "2019"),
		id3Text("TCON", "Electronic"),
		id3Text("TRCK", "3/12"),
		id3Picture("image/png", cover),
	)

	got := Extract(data)
	assert.Equal(t, FormatMPEG, got.Format)
	assert.Equal(t, "Real Title", got.Title)
	assert.Equal(t, "Real Artist", got.Artist)
	assert.Equal(t, "Real Album", got.Album)
	assert.Equal(t, "Electronic", got.Genre)
	require.NotNil(t, got.Year)
	assert.Equal(t, 2019, *got.Year)
	require.NotNil(t, got.TrackNumber)
	assert.Equal(t, 3, *got.TrackNumber)
	assert.Nil(t, got.DiscNumber)
	assert.Nil(t, got.Duration)

	require.NotNil(t, got.CoverArt)
	assert.Equal(t, "image/png", got.CoverArt.Format)
	assert.Equal(t, cover, got.CoverArt.Data)
}

func TestExtractMPEGStream(t *testing.T) {
	data := append(id3v23(id3Text("TIT2", "Tone")), mpegFrames(100, false)...)

	got := Extract(data)
	assert.Equal(t, "Tone", got.Title)
	require.NotNil(t, got.SampleRate)
	assert.Equal(t, 44100, *got.SampleRate)
	require.NotNil(t, got.Channels)
	assert.Equal(t, 2, *got.Channels)
	require.NotNil(t, got.Duration)
	assert.Equal(t, 3.0, *got.Duration)
	require.NotNil(t, got.Bitrate)
	assert.InDelta(t, 128000, *got.Bitrate, 2000)
}

func TestMPEGChannelMode(t *testing.T) {
	ch, ok := mpegChannels(mpegFrames(1, true))
	require.True(t, ok)
	assert.Equal(t, 1, ch)

	_, ok = mpegChannels([]byte{0x00, 0x01, 0x02, 0x03})
	assert.False(t, ok)
}

func TestExtractFLAC(t *testing.T) {
	first := pngBytes(t, color.RGBA{G: 255, A: 255})
	second := pngBytes(t, color.RGBA{B: 255, A: 255})
	data := flacFile(
		streamInfo(44100, 2, 16, 8273160),
		vorbisBlock(t, map[string]string{
			"TITLE":       "Real Title",
			"ARTIST":      "Real Artist",
			"ALBUM":       "Real Album",
			"GENRE":       "House",
			"DATE":        "2021-03-04",
			"TRACKNUMBER": "7",
			"DISCNUMBER":  "2",
		}),
		pictureBlock(t, first),
		pictureBlock(t, second),
	)

	got := Extract(data)
	assert.Equal(t, FormatFLAC, got.Format)
	assert.Equal(t, "Real Title", got.Title)
	assert.Equal(t, "Real Artist", got.Artist)
	assert.Equal(t, "Real Album", got.Album)
	assert.Equal(t, "House", got.Genre)
	require.NotNil(t, got.Year)
	assert.Equal(t, 2021, *got.Year)
	require.NotNil(t, got.TrackNumber)
	assert.Equal(t, 7, *got.TrackNumber)
	require.NotNil(t, got.DiscNumber)
	assert.Equal(t, 2, *got.DiscNumber)

	require.NotNil(t, got.SampleRate)
	assert.Equal(t, 44100, *got.SampleRate)
	require.NotNil(t, got.Channels)
	assert.Equal(t, 2, *got.Channels)
	require.NotNil(t, got.Duration)
	assert.Equal(t, 188.0, *got.Duration)
	assert.NotNil(t, got.Bitrate)

	require.NotNil(t, got.CoverArt)
	assert.Equal(t, first, got.CoverArt.Data, "first picture block wins")
}

func TestExtractFLACStreamInfoWithOrWithoutFrames(t *testing.T) {
	cover := pngBytes(t, color.RGBA{R: 255, A: 255})
	header := flacFile(streamInfo(48000, 1, 24, 480000), pictureBlock(t, cover))

	tests := map[string][]byte{
		"metadata only": header,
		"with frames":   append(append([]byte{}, header...), 0xFF, 0xF8, 0x69, 0x18, 0x00, 0x00, 0xBF, 0x03),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			got, problems := Inspect(data)
			for _, p := range problems {
				var xerr *ExtractionError
				if assert.ErrorAs(t, p, &xerr) {
					assert.NotEqual(t, "flac", xerr.Stage, p.Error())
				}
			}

			require.NotNil(t, got.SampleRate)
			assert.Equal(t, 48000, *got.SampleRate)
			require.NotNil(t, got.Channels)
			assert.Equal(t, 1, *got.Channels)
			require.NotNil(t, got.Duration)
			assert.Equal(t, 10.0, *got.Duration)
			require.NotNil(t, got.CoverArt)
			assert.Equal(t, cover, got.CoverArt.Data)
		})
	}
}

func TestExtractWAVE(t *testing.T) {
	got := Extract(wavFile(t, 8000, 1, 2))

	assert.Equal(t, FormatWAVE, got.Format)
	require.NotNil(t, got.Duration)
	assert.Equal(t, 2.0, *got.Duration)
	require.NotNil(t, got.SampleRate)
	assert.Equal(t, 8000, *got.SampleRate)
	require.NotNil(t, got.Channels)
	assert.Equal(t, 1, *got.Channels)
	require.NotNil(t, got.Bitrate)
	assert.Equal(t, 128000, *got.Bitrate)
	assert.Empty(t, got.Title)
}

func TestExtractMP4Duration(t *testing.T) {
	got := Extract(mp4File(1000, 187600))

	assert.Equal(t, FormatMPEG4, got.Format)
	require.NotNil(t, got.Duration)
	assert.Equal(t, 188.0, *got.Duration)
}

func TestExtractMP4AudioSampleEntry(t *testing.T) {
	got := Extract(mp4AudioFile(44100, 441000, 44100, 2))

	require.NotNil(t, got.Duration)
	assert.Equal(t, 10.0, *got.Duration)
	require.NotNil(t, got.SampleRate)
	assert.Equal(t, 44100, *got.SampleRate)
	require.NotNil(t, got.Channels)
	assert.Equal(t, 2, *got.Channels)
}

func TestExtractOggVorbis(t *testing.T) {
	got := Extract(oggVorbis(44100, 2, 441000))

	assert.Equal(t, FormatOgg, got.Format)
	require.NotNil(t, got.SampleRate)
	assert.Equal(t, 44100, *got.SampleRate)
	require.NotNil(t, got.Channels)
	assert.Equal(t, 2, *got.Channels)
	require.NotNil(t, got.Duration)
	assert.Equal(t, 10.0, *got.Duration)
}

func TestExtractNeverPanics(t *testing.T) {
	flacData := flacFile(streamInfo(44100, 2, 16, 44100))
	wavData := wavFile(t, 8000, 1, 1)
	rng := rand.New(rand.NewSource(1))
	noise := make([]byte, 4096)
	rng.Read(noise)

	inputs := map[string][]byte{
		"nil":             nil,
		"empty":           {},
		"noise":           noise,
		"text":            []byte("definitely not audio"),
		"id3 header only": []byte("ID3\x03\x00\x00\x7f\x7f\x7f\x7f"),
		"truncated flac":  flacData[:20],
		"truncated wav":   wavData[:30],
		"truncated mp4":   mp4File(1000, 1000)[:30],
		"bare ftyp":       mp4Atom("ftyp", []byte("isom")),
		"ogg no codec":    oggPage(10, []byte("nothing")),
		"lone sync":       {0xFF, 0xFB},
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			var before []byte
			if data != nil {
				before = append([]byte{}, data...)
			}
			assert.NotPanics(t, func() { Extract(data) })
			if data != nil {
				assert.Equal(t, before, data, "input must not be modified")
			}
		})
	}
}

func TestExtractUnknownContainerIsEmpty(t *testing.T) {
	got, problems := Inspect([]byte("definitely not audio"))
	assert.True(t, got.IsEmpty())
	require.Len(t, problems, 1)

	var extractionErr *ExtractionError
	require.ErrorAs(t, problems[0], &extractionErr)
	assert.Equal(t, "detect", extractionErr.Stage)
}

func TestExtractorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExtractor().Extract(ctx, mpegFrames(1, false))
	assert.ErrorIs(t, err, context.Canceled)

	got, err := NewExtractor().Extract(context.Background(), []byte("junk"))
	assert.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]struct {
		data []byte
		want string
	}{
		"flac":     {[]byte("fLaC\x00\x00\x00\x22"), FormatFLAC},
		"wave":     {[]byte("RIFF\x24\x00\x00\x00WAVEfmt "), FormatWAVE},
		"mp4":      {[]byte("\x00\x00\x00\x18ftypM4A "), FormatMPEG4},
		"ogg":      {[]byte("OggS\x00\x02"), FormatOgg},
		"mpeg":     {[]byte{0xFF, 0xFB, 0x90, 0x00}, FormatMPEG},
		"adts":     {[]byte{0xFF, 0xF1, 0x50, 0x80}, FormatAAC},
		"id3 flac": {append(id3v23(id3Text("TIT2", "x")), "fLaC"...), FormatFLAC},
		"garbage":  {[]byte("hello"), ""},
		"empty":    {nil, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectFormat(tc.data))
		})
	}
}

func TestDocumentSummarizesCover(t *testing.T) {
	e := Extracted{
		Title:    "T",
		Year:     intPtr(0),
		CoverArt: &CoverArt{Data: []byte{1, 2, 3}, Format: "image/jpeg"},
	}
	doc := e.Document()
	assert.Equal(t, "T", doc["title"])
	assert.Equal(t, 0, doc["year"])
	assert.Equal(t, map[string]any{"format": "image/jpeg", "size": 3}, doc["cover_art"])
	assert.NotContains(t, doc, "artist")
	assert.False(t, e.IsEmpty())
	assert.True(t, Extracted{}.IsEmpty())
}

func TestParseLeadingInt(t *testing.T) {
	n, ok := parseLeadingInt("3/12")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	n, ok = parseLeadingInt(" 2019-05-01")
	assert.True(t, ok)
	assert.Equal(t, 2019, n)

	_, ok = parseLeadingInt("n/a")
	assert.False(t, ok)
	_, ok = parseLeadingInt("0")
	assert.False(t, ok)
}
