package server

import (
	"net/http"
	"strings"

	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
	"github.com/lukewaehner/KijayKolder-LinksHub/model"

	"github.com/gorilla/mux"
)

// GetVideosHandler lists every background video.
func (h *APIHandler) GetVideosHandler(w http.ResponseWriter, r *http.Request) {
	videos, err := h.videoRepo.GetAll(r.Context())
	if err != nil {
		writeError(w, r, "fetch videos", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(videos))
}

// ActiveVideoHandler returns the active video. Without one it falls back to
// the first video, and with an empty table to the configured default clip.
func (h *APIHandler) ActiveVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	active, err := h.videoRepo.GetActive(ctx)
	if err != nil {
		writeError(w, r, "fetch active video", err)
		return
	}
	if active != nil {
		writeJSON(w, http.StatusOK, active)
		return
	}

	videos, err := h.videoRepo.GetAll(ctx)
	if err != nil {
		writeError(w, r, "fetch videos", err)
		return
	}
	if len(videos) > 0 {
		writeJSON(w, http.StatusOK, videos[0])
		return
	}
	logger.Debug("no background videos, serving fallback")
	writeJSON(w, http.StatusOK, model.FallbackVideo(h.cfg.FallbackVideoURL, h.cfg.FallbackVideoThumbnail))
}

// SwitchActiveVideoHandler makes {videoId} the only active video.
func (h *APIHandler) SwitchActiveVideoHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoID string `json:"videoId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "switch active video", err)
		return
	}
	if strings.TrimSpace(req.VideoID) == "" {
		writeError(w, r, "switch active video", invalid("Video ID is required"))
		return
	}

	video, err := h.videoRepo.SetActive(r.Context(), req.VideoID)
	if err != nil {
		writeError(w, r, "switch active video", err)
		return
	}
	logger.Info("active video switched", logger.String("video", video.ID))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Active video switched successfully",
		"video":   video,
	})
}

// ActivateVideoHandler is SwitchActiveVideoHandler addressed by path.
func (h *APIHandler) ActivateVideoHandler(w http.ResponseWriter, r *http.Request) {
	video, err := h.videoRepo.SetActive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, "activate video", err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

// ActivateVideoByNameHandler activates the first video, in sort order, whose
// title contains name case-insensitively or whose file URL contains it.
func (h *APIHandler) ActivateVideoByNameHandler(name, label string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		videos, err := h.videoRepo.GetAll(ctx)
		if err != nil {
			writeError(w, r, "fetch videos", err)
			return
		}

		var match *model.BackgroundVideo
		for _, v := range videos {
			if strings.Contains(strings.ToLower(v.Title), name) || strings.Contains(v.FileURL, name) {
				match = v
				break
			}
		}
		if match == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": label + " video not found"})
			return
		}

		video, err := h.videoRepo.SetActive(ctx, match.ID)
		if err != nil {
			writeError(w, r, "set "+name+" video as active", err)
			return
		}
		logger.Info("active video switched by name", logger.String("name", name), logger.String("video", video.ID))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": label + " video set as active",
			"video":   video,
		})
	}
}

type videoCreate struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	FileURL      string `json:"file_url"`
	FileSize     *int64 `json:"file_size"`
	ThumbnailURL string `json:"thumbnail_url"`
	Duration     *int   `json:"duration"`
	SortOrder    *int   `json:"sort_order"`
	IsActive     bool   `json:"is_active"`
}

// CreateVideoHandler registers a video whose file is already hosted.
// Creating it active deactivates every other video.
func (h *APIHandler) CreateVideoHandler(w http.ResponseWriter, r *http.Request) {
	var req videoCreate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "create video", err)
		return
	}
	if err := requireField("title", req.Title); err != nil {
		writeError(w, r, "create video", err)
		return
	}
	if err := requireField("file_url", req.FileURL); err != nil {
		writeError(w, r, "create video", err)
		return
	}

	ctx := r.Context()
	video := &model.BackgroundVideo{
		Title:        req.Title,
		Description:  req.Description,
		FileURL:      req.FileURL,
		FileSize:     req.FileSize,
		ThumbnailURL: req.ThumbnailURL,
		Duration:     req.Duration,
	}
	if req.SortOrder != nil {
		video.SortOrder = *req.SortOrder
	} else {
		n, err := h.videoRepo.Count(ctx)
		if err != nil {
			writeError(w, r, "create video", err)
			return
		}
		video.SortOrder = int(n)
	}

	created, err := h.videoRepo.Create(ctx, video)
	if err != nil {
		writeError(w, r, "create video", err)
		return
	}
	if req.IsActive {
		if created, err = h.videoRepo.SetActive(ctx, created.ID); err != nil {
			writeError(w, r, "activate video", err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, created)
}

// UploadVideosHandler runs a multipart drop of "files" through the video path.
func (h *APIHandler) UploadVideosHandler(w http.ResponseWriter, r *http.Request) {
	files, err := h.readUploads(w, r)
	if err != nil {
		writeError(w, r, "read upload", err)
		return
	}
	writeJSON(w, http.StatusOK, h.uploads.UploadVideos(r.Context(), files))
}

// UpdateVideoHandler patches title, description and the like. Activation
// has its own endpoint.
func (h *APIHandler) UpdateVideoHandler(w http.ResponseWriter, r *http.Request) {
	var patch model.VideoPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, "update video", err)
		return
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		writeError(w, r, "update video", invalid("title must not be empty"))
		return
	}
	if len(patch.Columns()) == 0 {
		writeError(w, r, "update video", invalid("no fields to update"))
		return
	}
	video, err := h.videoRepo.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, r, "update video", err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

// DeleteVideoHandler removes a video, and its blob when cascading is on.
func (h *APIHandler) DeleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	var video *model.BackgroundVideo
	if h.cfg.CascadeBlobDelete {
		var err error
		if video, err = h.videoRepo.GetByID(ctx, id); err != nil {
			writeError(w, r, "delete video", err)
			return
		}
	}
	if err := h.videoRepo.Delete(ctx, id); err != nil {
		writeError(w, r, "delete video", err)
		return
	}
	if video != nil {
		h.removeBlob(ctx, video.FileURL)
		if video.ThumbnailURL != "" {
			h.removeBlob(ctx, video.ThumbnailURL)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
