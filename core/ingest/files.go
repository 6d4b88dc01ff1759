// Package ingest feeds local files into the upload pipeline, either once from
// the command line or continuously from a watched drop folder.
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/upload"
)

// Uploader is the part of the orchestrator ingestion drives.
type Uploader interface {
	UploadTracks(ctx context.Context, files []upload.File) upload.BatchResult
	UploadVideos(ctx context.Context, files []upload.File) upload.BatchResult
}

var mediaTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// ContentType guesses a media type from the extension, then from the bytes.
func ContentType(name string, data []byte) string {
	if ct, ok := mediaTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return http.DetectContentType(data)
}

// LoadFile reads path into an upload.File.
func LoadFile(path string) (upload.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return upload.File{}, fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)
	return upload.File{Name: name, ContentType: ContentType(name, data), Data: data}, nil
}

// LoadFiles reads every path, stopping at the first unreadable one.
func LoadFiles(paths []string) ([]upload.File, error) {
	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		f, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// Result pairs the two batches of one ingestion.
type Result struct {
	Tracks upload.BatchResult
	Videos upload.BatchResult
}

// Ingest splits files by media type and uploads both kinds.
func Ingest(ctx context.Context, up Uploader, files []upload.File) Result {
	var audio, video []upload.File
	for _, f := range files {
		switch {
		case strings.HasPrefix(f.ContentType, "audio/"):
			audio = append(audio, f)
		case strings.HasPrefix(f.ContentType, "video/"):
			video = append(video, f)
		}
	}
	var res Result
	if len(audio) > 0 {
		res.Tracks = up.UploadTracks(ctx, audio)
	}
	if len(video) > 0 {
		res.Videos = up.UploadVideos(ctx, video)
	}
	return res
}
