package upload

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/metadata"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
	"github.com/lukewaehner/KijayKolder-LinksHub/model"
)

// Bitrates assumed when a container gives no duration.
const (
	estimatedFLACBitrate    = 1000000
	estimatedDefaultBitrate = 320000
)

// Fetcher downloads a file that does not live in the local file store.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTPFetcher downloads over plain HTTP(S).
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher returns a fetcher; a nil client gets a 60s timeout and a
// non-positive maxBytes means 200MB.
func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = 200 << 20
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}

// ExtractRequest is the body of POST /extract-metadata.
type ExtractRequest struct {
	FileURL  string `json:"fileUrl"`
	TrackID  string `json:"trackId"`
	FileName string `json:"fileName"`
}

// ExtractSummary is what the server-side pass derived for a track.
type ExtractSummary struct {
	Title        string         `json:"title"`
	Artist       string         `json:"artist"`
	Album        string         `json:"album"`
	Year         *int           `json:"year,omitempty"`
	Duration     int            `json:"duration"`
	Bitrate      int            `json:"bitrate"`
	Format       string         `json:"format"`
	FileSize     int64          `json:"file_size"`
	Estimated    bool           `json:"estimated"`
	WaveformData model.Waveform `json:"waveform_data"`
	Metadata     model.Document `json:"metadata"`
}

// ExtractResult is the patched track with the summary alongside it.
type ExtractResult struct {
	*model.Track
	ExtractedMetadata ExtractSummary `json:"extracted_metadata"`
}

// ExtractFromURL downloads an already uploaded file, reads its tags, and
// patches the track. When the container has no usable duration it is
// estimated from the file size.
func (o *Orchestrator) ExtractFromURL(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	if strings.TrimSpace(req.FileURL) == "" || strings.TrimSpace(req.TrackID) == "" {
		return nil, ErrMissingParameters
	}

	data, err := o.download(ctx, req.FileURL)
	if err != nil {
		return nil, err
	}

	extracted, err := o.extract(ctx, data)
	if err != nil {
		logger.Warn("metadata extraction failed, estimating from size",
			logger.String("track", req.TrackID),
			logger.ErrorField(err))
		extracted = metadata.Extracted{}
	}

	summary := summarize(req.FileName, data, extracted, o.now())
	album := summary.Album
	isSingle := album == ""
	patch := model.TrackPatch{
		Title:        &summary.Title,
		Artist:       &summary.Artist,
		Album:        &album,
		IsSingle:     &isSingle,
		Duration:     &summary.Duration,
		FileSize:     &summary.FileSize,
		WaveformData: &summary.WaveformData,
		Metadata:     &summary.Metadata,
		Year:         extracted.Year,
		TrackNumber:  extracted.TrackNumber,
		DiscNumber:   extracted.DiscNumber,
	}
	if extracted.Genre != "" {
		genre := extracted.Genre
		patch.Genre = &genre
	}

	track, err := o.tracks.Update(ctx, req.TrackID, patch)
	if err != nil {
		return nil, err
	}
	logger.Info("server-side extraction applied",
		logger.String("track", req.TrackID),
		logger.Int("duration", summary.Duration),
		logger.Bool("estimated", summary.Estimated))
	return &ExtractResult{Track: track, ExtractedMetadata: summary}, nil
}

func (o *Orchestrator) download(ctx context.Context, rawURL string) ([]byte, error) {
	if bucket, name, ok := o.files.ParseURL(rawURL); ok {
		rc, _, err := o.files.Open(ctx, bucket, name)
		if err != nil {
			return nil, fmt.Errorf("failed to download file: %w", err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return o.fetcher.Fetch(ctx, rawURL)
}

func summarize(fileName string, data []byte, e metadata.Extracted, now time.Time) ExtractSummary {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(fileName)), ".")
	if ext == "" {
		ext = "mp3"
	}
	size := int64(len(data))

	s := ExtractSummary{
		Title:    e.Title,
		Artist:   e.Artist,
		Album:    strings.TrimSpace(e.Album),
		Year:     e.Year,
		Duration: e.RoundedDuration(),
		Format:   "audio/" + ext,
		FileSize: size,
	}
	if s.Title == "" {
		s.Title = "Unknown Track"
		if fileName != "" {
			s.Title = baseName(fileName)
		}
	}
	if s.Artist == "" {
		s.Artist = model.DefaultArtist
	}

	estimate := estimatedDefaultBitrate
	if ext == "flac" {
		estimate = estimatedFLACBitrate
	}
	if e.Bitrate != nil && *e.Bitrate > 0 {
		s.Bitrate = *e.Bitrate
	} else {
		s.Bitrate = estimate
	}
	if s.Duration <= 0 {
		s.Duration = int(math.Round(float64(size) * 8 / float64(estimate)))
		s.Estimated = true
	}

	s.WaveformData = metadata.Envelope(data, metadata.WaveformPoints(s.Duration))
	s.Metadata = model.MergeDocuments(e.Document(), model.Document{
		"filename":     fileName,
		"file_size":    size,
		"format":       s.Format,
		"bitrate":      s.Bitrate,
		"duration":     s.Duration,
		"extracted_at": now.UTC().Format(time.RFC3339),
	})
	if e.Format != "" {
		s.Metadata["container"] = e.Format
	}
	return s
}
