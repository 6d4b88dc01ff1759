package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
)

// FileAPI uploads media into the fixed buckets and hands back public URLs
// of the form <base>/files/<bucket>/<name>.
type FileAPI struct {
	store   Store
	baseURL string
}

func NewFileAPI(store Store, publicBaseURL string) *FileAPI {
	return &FileAPI{store: store, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Store exposes the underlying blob store.
func (f *FileAPI) Store() Store {
	return f.store
}

func (f *FileAPI) UploadAudio(ctx context.Context, data []byte, name string) (string, error) {
	return f.Upload(ctx, BucketAudio, name, data, "")
}

func (f *FileAPI) UploadVideo(ctx context.Context, data []byte, name string) (string, error) {
	return f.Upload(ctx, BucketVideos, name, data, "")
}

func (f *FileAPI) UploadImage(ctx context.Context, data []byte, name string) (string, error) {
	return f.Upload(ctx, BucketImages, name, data, "")
}

// Upload stores data under bucket/name and returns its public URL.
// An empty contentType is inferred from the name's extension.
func (f *FileAPI) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", &UploadError{Bucket: bucket, Name: name, Err: err}
	}
	if contentType == "" {
		contentType = inferContentType(clean)
	}
	if err := f.store.Put(ctx, bucket, clean, data, contentType); err != nil {
		return "", err
	}
	return f.PublicURL(bucket, clean), nil
}

// DeleteFile removes a blob; a missing blob is not an error.
func (f *FileAPI) DeleteFile(ctx context.Context, bucket, name string) error {
	return f.store.Remove(ctx, bucket, name)
}

// DeleteURL removes the blob behind a URL produced by this API.
// URLs from elsewhere are ignored.
func (f *FileAPI) DeleteURL(ctx context.Context, rawURL string) error {
	bucket, name, ok := f.ParseURL(rawURL)
	if !ok {
		return nil
	}
	return f.DeleteFile(ctx, bucket, name)
}

func (f *FileAPI) Open(ctx context.Context, bucket, name string) (io.ReadCloser, ObjectInfo, error) {
	return f.store.Get(ctx, bucket, name)
}

// PublicURL is the address the file proxy serves bucket/name from.
func (f *FileAPI) PublicURL(bucket, name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return f.baseURL + "/files/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// ParseURL reverses PublicURL.
func (f *FileAPI) ParseURL(rawURL string) (bucket, name string, ok bool) {
	prefix := f.baseURL + "/files/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", "", false
	}
	rest, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil {
		return "", "", false
	}
	bucket, name, found := strings.Cut(rest, "/")
	if !found || bucket == "" || name == "" {
		return "", "", false
	}
	return bucket, name, true
}

func cleanName(name string) (string, error) {
	name = strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/")
	if name == "" {
		return "", fmt.Errorf("empty object name")
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("invalid object name %q", name)
		}
	}
	return name, nil
}

func inferContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".mov":
		return "video/quicktime"
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
