package model

import (
	"gorm.io/datatypes"
)

// Document is a schema-free JSON object stored in a single column.
// Numbers scanned back from the database arrive as json.Number.
type Document = datatypes.JSONMap

// Waveform is the advisory amplitude envelope drawn by the player.
type Waveform = datatypes.JSONSlice[float64]

// MergeDocuments returns a copy of base with every key of over written on top.
func MergeDocuments(base, over Document) Document {
	out := make(Document, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
