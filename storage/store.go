package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Bucket names. The catalog stores URLs that embed them.
const (
	BucketAudio  = "audio"
	BucketVideos = "videos"
	BucketImages = "images"
)

// Buckets lists every bucket the service writes to.
var Buckets = []string{BucketAudio, BucketVideos, BucketImages}

var (
	// ErrObjectExists is returned when an upload would overwrite an object.
	ErrObjectExists = errors.New("object already exists")

	// ErrObjectNotFound is returned by Get for a missing object.
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectInfo 文件信息
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store is a blob store addressed by bucket and object name.
// Writes are whole-object: no multipart or resumable uploads.
type Store interface {
	Put(ctx context.Context, bucket, name string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, name string) (io.ReadCloser, ObjectInfo, error)
	// Remove deletes an object. Removing a missing object succeeds.
	Remove(ctx context.Context, bucket, name string) error
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	EnsureBuckets(ctx context.Context, buckets ...string) error
}

// UploadError is returned when the blob store rejects an upload.
type UploadError struct {
	Bucket string
	Name   string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s/%s: %v", e.Bucket, e.Name, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
