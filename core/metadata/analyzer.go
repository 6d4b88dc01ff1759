package metadata

import (
	"math"
	"reflect"

	"github.com/lukewaehner/KijayKolder-LinksHub/model"
)

// ExpectedFields are the descriptive fields scored by Analyze, in report order.
var ExpectedFields = []string{"title", "artist", "album", "year", "genre", "track_number"}

var displayNames = map[string]string{
	"title":        "Title",
	"artist":       "Artist",
	"album":        "Album",
	"year":         "Year",
	"genre":        "Genre",
	"track_number": "Track Number",
	"disc_number":  "Disc Number",
	"duration":     "Duration",
	"bitrate":      "Bitrate",
	"sample_rate":  "Sample Rate",
	"channels":     "Channels",
	"format":       "Format",
}

// Analysis partitions ExpectedFields by presence.
type Analysis struct {
	Present      []string `json:"present"`
	Missing      []string `json:"missing"`
	Completeness int      `json:"completeness"`
}

// Analyze scores doc. Zero counts as present; nil, a nil pointer and the
// empty string do not. A nil doc is all missing.
func Analyze(doc model.Document) Analysis {
	a := Analysis{Present: []string{}, Missing: []string{}}
	for _, field := range ExpectedFields {
		if isPresent(doc[field]) {
			a.Present = append(a.Present, field)
		} else {
			a.Missing = append(a.Missing, field)
		}
	}
	a.Completeness = int(math.Round(float64(len(a.Present)) / float64(len(ExpectedFields)) * 100))
	return a
}

// AnalyzeExtracted scores a fresh extraction.
func AnalyzeExtracted(e Extracted) Analysis {
	return Analyze(e.Document())
}

// AnalyzeTrack scores a stored track by its own columns. The metadata
// document is not consulted, so stale tag values never count.
func AnalyzeTrack(t *model.Track) Analysis {
	if t == nil {
		return Analyze(nil)
	}
	return Analyze(model.Document{
		"title":        t.Title,
		"artist":       t.Artist,
		"album":        t.Album,
		"year":         t.Year,
		"genre":        t.Genre,
		"track_number": t.TrackNumber,
	})
}

// FieldDisplayName is the label shown for a metadata key.
func FieldDisplayName(field string) string {
	if name, ok := displayNames[field]; ok {
		return name
	}
	return field
}

func isPresent(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return false
		}
		return isPresent(rv.Elem().Interface())
	}
	return true
}
