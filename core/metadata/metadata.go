// Package metadata reads tags and stream properties out of uploaded audio
// files and scores how complete a record's descriptive fields are.
package metadata

import (
	"fmt"
	"math"

	"github.com/lukewaehner/KijayKolder-LinksHub/model"
)

// Container names reported in Extracted.Format.
const (
	FormatMPEG  = "MPEG"
	FormatAAC   = "AAC"
	FormatFLAC  = "FLAC"
	FormatWAVE  = "WAVE"
	FormatMPEG4 = "MPEG-4"
	FormatOgg   = "Ogg"
)

// CoverArt is an embedded picture. Format is its MIME type.
type CoverArt struct {
	Data   []byte
	Format string
}

// Extracted is what could be read from one file. Unset fields were absent
// from the container; nothing here is defaulted.
type Extracted struct {
	Title  string
	Artist string
	Album  string
	Genre  string

	Year        *int
	TrackNumber *int
	DiscNumber  *int

	// Duration is in whole seconds.
	Duration   *float64
	Bitrate    *int
	SampleRate *int
	Channels   *int
	Format     string

	CoverArt *CoverArt
}

// IsEmpty reports whether nothing at all was extracted.
func (e Extracted) IsEmpty() bool {
	return len(e.Document()) == 0 && e.CoverArt == nil
}

// Document renders the set fields for storage in a track's metadata column.
// Cover bytes are summarized, never embedded.
func (e Extracted) Document() model.Document {
	doc := model.Document{}
	putString(doc, "title", e.Title)
	putString(doc, "artist", e.Artist)
	putString(doc, "album", e.Album)
	putString(doc, "genre", e.Genre)
	putInt(doc, "year", e.Year)
	putInt(doc, "track_number", e.TrackNumber)
	putInt(doc, "disc_number", e.DiscNumber)
	if e.Duration != nil {
		doc["duration"] = *e.Duration
	}
	putInt(doc, "bitrate", e.Bitrate)
	putInt(doc, "sample_rate", e.SampleRate)
	putInt(doc, "channels", e.Channels)
	putString(doc, "format", e.Format)
	if e.CoverArt != nil {
		doc["cover_art"] = map[string]any{
			"format": e.CoverArt.Format,
			"size":   len(e.CoverArt.Data),
		}
	}
	return doc
}

// RoundedDuration is Duration as an int, 0 when unknown.
func (e Extracted) RoundedDuration() int {
	if e.Duration == nil {
		return 0
	}
	return int(math.Round(*e.Duration))
}

func putString(doc model.Document, key, v string) {
	if v != "" {
		doc[key] = v
	}
}

func putInt(doc model.Document, key string, v *int) {
	if v != nil {
		doc[key] = *v
	}
}

// ExtractionError describes one parser stage that failed. It is logged and
// reported by Inspect but never returned from Extract.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("metadata %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
