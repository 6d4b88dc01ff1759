// Package upload turns dropped media files into catalog records: blob first,
// provisional record second, then enrichment from the file's own tags.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/metadata"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
	"github.com/lukewaehner/KijayKolder-LinksHub/model"
	"github.com/lukewaehner/KijayKolder-LinksHub/storage"
)

// Upload kinds reported in Status.Kind.
const (
	KindTrack = "track"
	KindVideo = "video"
)

// TrackStore is the part of the track catalog the orchestrator writes to.
type TrackStore interface {
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, track *model.Track) (*model.Track, error)
	Update(ctx context.Context, id string, patch model.TrackPatch) (*model.Track, error)
	GetAllForAdmin(ctx context.Context) ([]*model.Track, error)
}

// VideoStore is the part of the video catalog the orchestrator writes to.
type VideoStore interface {
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, video *model.BackgroundVideo) (*model.BackgroundVideo, error)
	GetAll(ctx context.Context) ([]*model.BackgroundVideo, error)
}

// FileStore uploads blobs and resolves the URLs it hands out.
type FileStore interface {
	UploadAudio(ctx context.Context, data []byte, name string) (string, error)
	UploadVideo(ctx context.Context, data []byte, name string) (string, error)
	UploadImage(ctx context.Context, data []byte, name string) (string, error)
	ParseURL(rawURL string) (bucket, name string, ok bool)
	Open(ctx context.Context, bucket, name string) (io.ReadCloser, storage.ObjectInfo, error)
}

// MetadataExtractor reads tags out of raw file bytes.
type MetadataExtractor interface {
	Extract(ctx context.Context, data []byte) (metadata.Extracted, error)
}

// File is one dropped file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileResult is the outcome of one accepted file.
type FileResult struct {
	UploadID string `json:"upload_id"`
	FileName string `json:"file_name"`
	State    State  `json:"state"`
	Percent  int    `json:"percent"`
	URL      string `json:"url,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResult reports a whole drop. Tracks or Videos hold the catalog as
// reloaded after the batch.
type BatchResult struct {
	Accepted  int                      `json:"accepted"`
	Skipped   []string                 `json:"skipped"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
	Files     []FileResult             `json:"files"`
	Tracks    []*model.Track           `json:"tracks,omitempty"`
	Videos    []*model.BackgroundVideo `json:"videos,omitempty"`
}

func (b *BatchResult) add(r FileResult) {
	b.Files = append(b.Files, r)
	if r.State == StateError {
		b.Failed++
	} else {
		b.Succeeded++
	}
}

// Orchestrator runs uploads one file at a time. Separate batches may run
// concurrently; nothing de-duplicates them.
type Orchestrator struct {
	tracks    TrackStore
	videos    VideoStore
	files     FileStore
	extractor MetadataExtractor
	progress  *Tracker
	fetcher   Fetcher
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now, which names blobs.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithFetcher sets how ExtractFromURL downloads URLs outside the file store.
func WithFetcher(f Fetcher) Option {
	return func(o *Orchestrator) { o.fetcher = f }
}

// NewOrchestrator wires the pipeline. progress may be nil.
func NewOrchestrator(tracks TrackStore, videos VideoStore, files FileStore, extractor MetadataExtractor, progress *Tracker, opts ...Option) *Orchestrator {
	if progress == nil {
		progress = NewTracker(nil)
	}
	o := &Orchestrator{
		tracks:    tracks,
		videos:    videos,
		files:     files,
		extractor: extractor,
		progress:  progress,
		fetcher:   NewHTTPFetcher(nil, 0),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Progress exposes the tracker the orchestrator reports to.
func (o *Orchestrator) Progress() *Tracker {
	return o.progress
}

// UploadTracks stores every audio/* file in files, creates its provisional
// track and enriches it from the file's tags. Other files are skipped.
// A failure on one file never stops the batch.
func (o *Orchestrator) UploadTracks(ctx context.Context, files []File) BatchResult {
	accepted, skipped := filterByType(files, "audio/")
	result := BatchResult{Accepted: len(accepted), Skipped: skipped, Files: []FileResult{}}
	if len(accepted) == 0 {
		return result
	}

	for _, f := range accepted {
		result.add(o.uploadTrack(ctx, f))
	}

	tracks, err := o.tracks.GetAllForAdmin(ctx)
	if err != nil {
		logger.Error("reload tracks after upload failed", logger.ErrorField(err))
	} else {
		result.Tracks = tracks
	}

	logger.Info("track upload batch finished",
		logger.Int("accepted", result.Accepted),
		logger.Int("skipped", len(result.Skipped)),
		logger.Int("failed", result.Failed))
	return result
}

func (o *Orchestrator) uploadTrack(ctx context.Context, f File) FileResult {
	uploadID := o.uploadID(f.Name)
	res := FileResult{UploadID: uploadID, FileName: f.Name}
	fail := func(step string, err error) FileResult {
		logger.Error("track upload failed",
			logger.String("uploadId", uploadID),
			logger.String("step", step),
			logger.ErrorField(err))
		o.progress.Fail(ctx, uploadID, err)
		res.State = StateError
		res.Percent = StateError.Percent()
		res.Error = err.Error()
		return res
	}

	o.progress.Start(ctx, uploadID, f.Name, KindTrack)

	fileURL, err := o.files.UploadAudio(ctx, f.Data, uploadID)
	if err != nil {
		return fail("blob", err)
	}
	res.URL = fileURL
	o.progress.Advance(ctx, uploadID, StateBlobStored)

	count, err := o.tracks.Count(ctx)
	if err != nil {
		return fail("count", err)
	}
	title := baseName(f.Name)
	created, err := o.tracks.Create(ctx, &model.Track{
		Title:     title,
		Artist:    model.DefaultArtist,
		Album:     "",
		Duration:  0,
		FileURL:   fileURL,
		FileSize:  int64(len(f.Data)),
		Metadata:  uploadContext(f),
		IsActive:  true,
		IsSingle:  true,
		SortOrder: int(count),
	})
	if err != nil {
		return fail("create", err)
	}
	res.RecordID = created.ID
	o.progress.Attach(uploadID, created.ID)
	o.progress.Advance(ctx, uploadID, StateRecordCreated)

	o.progress.Advance(ctx, uploadID, StateMetadataExtracted)
	extracted, err := o.extract(ctx, f.Data)
	if err != nil {
		logger.Warn("metadata extraction failed, keeping provisional track",
			logger.String("uploadId", uploadID),
			logger.String("track", created.ID),
			logger.ErrorField(err))
	} else {
		patch := enrichmentPatch(f, title, extracted)
		if extracted.CoverArt != nil {
			if coverURL, ok := o.uploadCover(ctx, created.ID, extracted.CoverArt); ok {
				patch.CoverImageURL = &coverURL
				o.progress.Advance(ctx, uploadID, StateCoverUploaded)
			}
		}
		if _, err := o.tracks.Update(ctx, created.ID, patch); err != nil {
			logger.Error("applying extracted metadata failed, keeping provisional track",
				logger.String("track", created.ID),
				logger.ErrorField(err))
		}
	}

	o.progress.Advance(ctx, uploadID, StateRecordPatched)
	res.State = StateRecordPatched
	res.Percent = StateRecordPatched.Percent()
	return res
}

// extract runs the extractor and turns a panic into an error.
func (o *Orchestrator) extract(ctx context.Context, data []byte) (out metadata.Extracted, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = metadata.Extracted{}
			err = &metadata.ExtractionError{Stage: "extractor", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return o.extractor.Extract(ctx, data)
}

func (o *Orchestrator) uploadCover(ctx context.Context, trackID string, cover *metadata.CoverArt) (string, bool) {
	name := fmt.Sprintf("covers/%s_%d%s", trackID, o.now().UnixMilli(), coverExtension(cover.Format))
	u, err := o.files.UploadImage(ctx, cover.Data, name)
	if err != nil {
		logger.Warn("cover art upload failed",
			logger.String("track", trackID),
			logger.ErrorField(err))
		return "", false
	}
	return u, true
}

// enrichmentPatch applies extracted tags over the provisional values.
func enrichmentPatch(f File, provisionalTitle string, e metadata.Extracted) model.TrackPatch {
	title := e.Title
	if title == "" {
		title = provisionalTitle
	}
	artist := e.Artist
	if artist == "" {
		artist = model.DefaultArtist
	}
	album := strings.TrimSpace(e.Album)
	isSingle := album == ""
	duration := e.RoundedDuration()
	doc := model.MergeDocuments(uploadContext(f), e.Document())

	patch := model.TrackPatch{
		Title:       &title,
		Artist:      &artist,
		Album:       &album,
		IsSingle:    &isSingle,
		Duration:    &duration,
		Year:        e.Year,
		TrackNumber: e.TrackNumber,
		DiscNumber:  e.DiscNumber,
		Metadata:    &doc,
	}
	if e.Genre != "" {
		genre := e.Genre
		patch.Genre = &genre
	}
	return patch
}

// UploadVideos stores every video/* file and creates an inactive record
// for it. No extraction is attempted.
func (o *Orchestrator) UploadVideos(ctx context.Context, files []File) BatchResult {
	accepted, skipped := filterByType(files, "video/")
	result := BatchResult{Accepted: len(accepted), Skipped: skipped, Files: []FileResult{}}
	if len(accepted) == 0 {
		return result
	}

	for _, f := range accepted {
		result.add(o.uploadVideo(ctx, f))
	}

	videos, err := o.videos.GetAll(ctx)
	if err != nil {
		logger.Error("reload videos after upload failed", logger.ErrorField(err))
	} else {
		result.Videos = videos
	}
	return result
}

func (o *Orchestrator) uploadVideo(ctx context.Context, f File) FileResult {
	uploadID := o.uploadID(f.Name)
	res := FileResult{UploadID: uploadID, FileName: f.Name}
	fail := func(step string, err error) FileResult {
		logger.Error("video upload failed",
			logger.String("uploadId", uploadID),
			logger.String("step", step),
			logger.ErrorField(err))
		o.progress.Fail(ctx, uploadID, err)
		res.State = StateError
		res.Percent = StateError.Percent()
		res.Error = err.Error()
		return res
	}

	o.progress.Start(ctx, uploadID, f.Name, KindVideo)

	fileURL, err := o.files.UploadVideo(ctx, f.Data, uploadID)
	if err != nil {
		return fail("blob", err)
	}
	res.URL = fileURL
	o.progress.Advance(ctx, uploadID, StateBlobStored)

	count, err := o.videos.Count(ctx)
	if err != nil {
		return fail("count", err)
	}
	size := int64(len(f.Data))
	zero := 0
	created, err := o.videos.Create(ctx, &model.BackgroundVideo{
		Title:     baseName(f.Name),
		FileURL:   fileURL,
		FileSize:  &size,
		Duration:  &zero,
		IsActive:  false,
		SortOrder: int(count),
	})
	if err != nil {
		return fail("create", err)
	}
	res.RecordID = created.ID
	o.progress.Attach(uploadID, created.ID)
	o.progress.Advance(ctx, uploadID, StateRecordCreated)
	o.progress.Advance(ctx, uploadID, StateRecordPatched)

	res.State = StateRecordPatched
	res.Percent = StateRecordPatched.Percent()
	return res
}

func (o *Orchestrator) uploadID(fileName string) string {
	return fmt.Sprintf("%d_%s", o.now().UnixMilli(), safeName(fileName))
}

func filterByType(files []File, prefix string) (accepted []File, skipped []string) {
	skipped = []string{}
	for _, f := range files {
		if strings.HasPrefix(strings.ToLower(f.ContentType), prefix) {
			accepted = append(accepted, f)
		} else {
			skipped = append(skipped, f.Name)
		}
	}
	return accepted, skipped
}

func uploadContext(f File) model.Document {
	return model.Document{
		"filename": f.Name,
		"size":     len(f.Data),
		"type":     f.ContentType,
	}
}

// baseName is the file name without its extension.
func baseName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// safeName keeps blob names to a single path segment.
func safeName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

func coverExtension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".jpg"
	}
}

// ErrMissingParameters is returned by ExtractFromURL for an incomplete request.
var ErrMissingParameters = errors.New("missing required parameters: fileUrl and trackId")
