package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BackgroundVideo is a looping clip behind the landing page. At most one is active.
type BackgroundVideo struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Title        string    `json:"title" gorm:"size:255;not null"`
	Description  string    `json:"description" gorm:"type:text"`
	FileURL      string    `json:"file_url" gorm:"size:1024;not null"`
	FileSize     *int64    `json:"file_size"`
	ThumbnailURL string    `json:"thumbnail_url" gorm:"size:1024"`
	Duration     *int      `json:"duration"`
	IsActive     bool      `json:"is_active" gorm:"index"`
	SortOrder    int       `json:"sort_order" gorm:"index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (BackgroundVideo) TableName() string {
	return "background_videos"
}

func (v *BackgroundVideo) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// VideoPatch is a partial update; nil fields are left untouched.
// is_active is absent: activation goes through SetActive.
type VideoPatch struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	FileURL      *string `json:"file_url,omitempty"`
	FileSize     *int64  `json:"file_size,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	Duration     *int    `json:"duration,omitempty"`
	SortOrder    *int    `json:"sort_order,omitempty"`
}

func (p VideoPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	setString(cols, "title", p.Title)
	setString(cols, "description", p.Description)
	setString(cols, "file_url", p.FileURL)
	if p.FileSize != nil {
		cols["file_size"] = *p.FileSize
	}
	setString(cols, "thumbnail_url", p.ThumbnailURL)
	setInt(cols, "duration", p.Duration)
	setInt(cols, "sort_order", p.SortOrder)
	return cols
}

// FallbackVideo is served when the catalog has no videos at all.
func FallbackVideo(fileURL, thumbnailURL string) BackgroundVideo {
	size := int64(25000000)
	duration := 60
	return BackgroundVideo{
		ID:           "demo-video",
		Title:        "Trivial Knowledge Background",
		Description:  "Default background video",
		FileURL:      fileURL,
		FileSize:     &size,
		ThumbnailURL: thumbnailURL,
		Duration:     &duration,
		IsActive:     true,
	}
}
