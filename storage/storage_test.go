package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadRoundTripIsByteIdentical(t *testing.T) {
	ctx := context.Background()
	api := NewFileAPI(NewMemoryStore(), "http://localhost:8080/")

	payload := []byte{0x49, 0x44, 0x33, 0x00, 0xff, 0x10, 0x00}
	u, err := api.UploadAudio(ctx, payload, "1700000000000_My Song.mp3")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/audio/1700000000000_My%20Song.mp3", u)

	bucket, name, ok := api.ParseURL(u)
	require.True(t, ok)
	assert.Equal(t, BucketAudio, bucket)
	assert.Equal(t, "1700000000000_My Song.mp3", name)

	rc, info, err := api.Open(ctx, bucket, name)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, "audio/mpeg", info.ContentType)
	assert.EqualValues(t, len(payload), info.Size)
}

func TestUploadNestedNameKeepsSlashes(t *testing.T) {
	api := NewFileAPI(NewMemoryStore(), "https://cdn.example")

	u, err := api.UploadImage(context.Background(), []byte("png"), "covers/abc_1.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/files/images/covers/abc_1.png", u)

	bucket, name, ok := api.ParseURL(u)
	require.True(t, ok)
	assert.Equal(t, BucketImages, bucket)
	assert.Equal(t, "covers/abc_1.png", name)
}

func TestUploadRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	api := NewFileAPI(NewMemoryStore(), "")

	_, err := api.UploadVideo(ctx, []byte("a"), "clip.mp4")
	require.NoError(t, err)

	_, err = api.UploadVideo(ctx, []byte("b"), "clip.mp4")
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.ErrorIs(t, err, ErrObjectExists)
	assert.Equal(t, BucketVideos, uploadErr.Bucket)
}

func TestUploadRejectsBadNames(t *testing.T) {
	api := NewFileAPI(NewMemoryStore(), "")
	for _, name := range []string{"", "/", "../etc/passwd", "covers//x.png"} {
		_, err := api.UploadAudio(context.Background(), []byte("x"), name)
		assert.Error(t, err, name)
	}
}

func TestInjectedPutFailureSurfacesAsUploadError(t *testing.T) {
	store := NewMemoryStore()
	store.FailPut = func(bucket, name string) error { return errors.New("quota exceeded") }
	api := NewFileAPI(store, "")

	_, err := api.UploadAudio(context.Background(), []byte("x"), "a.mp3")
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	api := NewFileAPI(NewMemoryStore(), "http://h")

	u, err := api.UploadAudio(ctx, []byte("x"), "a.mp3")
	require.NoError(t, err)

	require.NoError(t, api.DeleteURL(ctx, u))
	require.NoError(t, api.DeleteURL(ctx, u))
	require.NoError(t, api.DeleteFile(ctx, BucketAudio, "never-existed.mp3"))
	require.NoError(t, api.DeleteURL(ctx, "https://elsewhere/files/audio/a.mp3"))

	_, _, err = api.Open(ctx, BucketAudio, "a.mp3")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestParseURLRejectsForeignURLs(t *testing.T) {
	api := NewFileAPI(NewMemoryStore(), "http://h")
	for _, u := range []string{"http://other/files/audio/a.mp3", "http://h/files/audio", "http://h/files//a.mp3", "http://h/static/a"} {
		_, _, ok := api.ParseURL(u)
		assert.False(t, ok, u)
	}
}

func TestStatsAndFormatSize(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.EnsureBuckets(ctx, Buckets...))
	require.NoError(t, store.Put(ctx, BucketImages, "covers/a.jpg", make([]byte, 1024), "image/jpeg"))
	require.NoError(t, store.Put(ctx, BucketImages, "covers/b.jpg", make([]byte, 2048), "image/jpeg"))
	require.NoError(t, store.Put(ctx, BucketImages, "other.png", make([]byte, 10), "image/png"))

	stats, objects, err := Stats(ctx, store, BucketImages, "covers/")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalObjects)
	assert.EqualValues(t, 3072, stats.TotalSize)
	assert.Equal(t, "covers/a.jpg", objects[0].Key)

	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "3.0 KiB", FormatSize(3072))
	assert.Equal(t, "1.5 MiB", FormatSize(1536*1024))
}
