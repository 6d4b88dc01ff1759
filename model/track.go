package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultArtist is used until a tag says otherwise.
const DefaultArtist = "Unknown Artist"

// Track is one catalog entry for an uploaded audio file.
type Track struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	Title         string    `json:"title" gorm:"size:255;not null"`
	Artist        string    `json:"artist" gorm:"size:255"`
	Album         string    `json:"album" gorm:"size:255"`
	Year          *int      `json:"year"`
	Genre         *string   `json:"genre" gorm:"size:100"`
	TrackNumber   *int      `json:"track_number"`
	DiscNumber    *int      `json:"disc_number"`
	Duration      int       `json:"duration"`
	FileURL       string    `json:"file_url" gorm:"size:1024;not null"`
	FileSize      int64     `json:"file_size"`
	CoverImageURL *string   `json:"cover_image_url" gorm:"size:1024"`
	WaveformData  Waveform  `json:"waveform_data"`
	Metadata      Document  `json:"metadata"`
	IsActive      bool      `json:"is_active" gorm:"index"`
	IsSingle      bool      `json:"is_single"`
	SortOrder     int       `json:"sort_order" gorm:"index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// BeforeCreate assigns the opaque id.
func (t *Track) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// TrackPatch is a partial update; nil fields are left untouched.
type TrackPatch struct {
	Title         *string   `json:"title,omitempty"`
	Artist        *string   `json:"artist,omitempty"`
	Album         *string   `json:"album,omitempty"`
	Year          *int      `json:"year,omitempty"`
	Genre         *string   `json:"genre,omitempty"`
	TrackNumber   *int      `json:"track_number,omitempty"`
	DiscNumber    *int      `json:"disc_number,omitempty"`
	Duration      *int      `json:"duration,omitempty"`
	FileURL       *string   `json:"file_url,omitempty"`
	FileSize      *int64    `json:"file_size,omitempty"`
	CoverImageURL *string   `json:"cover_image_url,omitempty"`
	WaveformData  *Waveform `json:"waveform_data,omitempty"`
	Metadata      *Document `json:"metadata,omitempty"`
	IsActive      *bool     `json:"is_active,omitempty"`
	IsSingle      *bool     `json:"is_single,omitempty"`
	SortOrder     *int      `json:"sort_order,omitempty"`
}

// Columns renders the set fields keyed by column name.
func (p TrackPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	setString(cols, "title", p.Title)
	setString(cols, "artist", p.Artist)
	setString(cols, "album", p.Album)
	setInt(cols, "year", p.Year)
	setString(cols, "genre", p.Genre)
	setInt(cols, "track_number", p.TrackNumber)
	setInt(cols, "disc_number", p.DiscNumber)
	setInt(cols, "duration", p.Duration)
	setString(cols, "file_url", p.FileURL)
	if p.FileSize != nil {
		cols["file_size"] = *p.FileSize
	}
	setString(cols, "cover_image_url", p.CoverImageURL)
	if p.WaveformData != nil {
		cols["waveform_data"] = *p.WaveformData
	}
	if p.Metadata != nil {
		cols["metadata"] = *p.Metadata
	}
	setBool(cols, "is_active", p.IsActive)
	setBool(cols, "is_single", p.IsSingle)
	setInt(cols, "sort_order", p.SortOrder)
	return cols
}

// IsEmpty reports whether the patch would change nothing.
func (p TrackPatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}

func setString(cols map[string]interface{}, key string, v *string) {
	if v != nil {
		cols[key] = *v
	}
}

func setInt(cols map[string]interface{}, key string, v *int) {
	if v != nil {
		cols[key] = *v
	}
}

func setBool(cols map[string]interface{}, key string, v *bool) {
	if v != nil {
		cols[key] = *v
	}
}
