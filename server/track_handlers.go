package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/metadata"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/upload"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
	"github.com/lukewaehner/KijayKolder-LinksHub/model"

	"github.com/gorilla/mux"
)

// GetTracksHandler lists the tracks shown to listeners.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.GetAll(r.Context())
	if err != nil {
		writeError(w, r, "fetch tracks", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tracks))
}

// AdminTracksHandler lists every track, active or not.
func (h *APIHandler) AdminTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.GetAllForAdmin(r.Context())
	if err != nil {
		writeError(w, r, "fetch tracks", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tracks))
}

// UploadTracksHandler runs a multipart drop of "files" through the upload
// pipeline. Non-audio parts are reported as skipped.
func (h *APIHandler) UploadTracksHandler(w http.ResponseWriter, r *http.Request) {
	files, err := h.readUploads(w, r)
	if err != nil {
		writeError(w, r, "read upload", err)
		return
	}
	result := h.uploads.UploadTracks(r.Context(), files)
	logger.Info("track batch finished",
		logger.Int("accepted", result.Accepted),
		logger.Int("succeeded", result.Succeeded),
		logger.Int("failed", result.Failed))
	writeJSON(w, http.StatusOK, result)
}

// trackEdit is the manual edit form. Only fields present in the body change.
type trackEdit struct {
	Title       *string `json:"title"`
	Artist      *string `json:"artist"`
	Album       *string `json:"album"`
	Year        *int    `json:"year"`
	Genre       *string `json:"genre"`
	TrackNumber *int    `json:"track_number"`
	DiscNumber  *int    `json:"disc_number"`
	IsSingle    *bool   `json:"is_single"`
	SortOrder   *int    `json:"sort_order"`
}

func (e trackEdit) patch() (model.TrackPatch, error) {
	if e.Title != nil && strings.TrimSpace(*e.Title) == "" {
		return model.TrackPatch{}, invalid("title must not be empty")
	}
	p := model.TrackPatch{
		Title:       e.Title,
		Artist:      e.Artist,
		Album:       e.Album,
		Year:        e.Year,
		Genre:       e.Genre,
		TrackNumber: e.TrackNumber,
		DiscNumber:  e.DiscNumber,
		IsSingle:    e.IsSingle,
		SortOrder:   e.SortOrder,
	}
	// 修改专辑但未指定 is_single 时重新推导
	if e.Album != nil && e.IsSingle == nil {
		single := strings.TrimSpace(*e.Album) == ""
		p.IsSingle = &single
	}
	if p.IsEmpty() {
		return p, invalid("no fields to update")
	}
	return p, nil
}

// UpdateTrackHandler applies a manual edit.
func (h *APIHandler) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	var edit trackEdit
	if err := decodeJSON(r, &edit); err != nil {
		writeError(w, r, "update track", err)
		return
	}
	patch, err := edit.patch()
	if err != nil {
		writeError(w, r, "update track", err)
		return
	}
	track, err := h.trackRepo.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, r, "update track", err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// DeleteTrackHandler removes one track.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.deleteTrack(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, "delete track", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// BulkDeleteTracksHandler deletes {ids} in order and stops at the first failure.
func (h *APIHandler) BulkDeleteTracksHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "delete tracks", err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, "delete tracks", invalid("ids is required"))
		return
	}

	deleted := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if err := h.deleteTrack(r.Context(), id); err != nil {
			writeJSON(w, statusFor(err), map[string]any{
				"error":   err.Error(),
				"deleted": deleted,
			})
			return
		}
		deleted = append(deleted, id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

func (h *APIHandler) deleteTrack(ctx context.Context, id string) error {
	var track *model.Track
	if h.cfg.CascadeBlobDelete {
		var err error
		if track, err = h.trackRepo.GetByID(ctx, id); err != nil {
			return err
		}
	}
	if err := h.trackRepo.Delete(ctx, id); err != nil {
		return err
	}
	if track != nil {
		h.removeBlob(ctx, track.FileURL)
		if track.CoverImageURL != nil {
			h.removeBlob(ctx, *track.CoverImageURL)
		}
	}
	return nil
}

// removeBlob deletes a blob the catalog no longer references.
func (h *APIHandler) removeBlob(ctx context.Context, rawURL string) {
	if err := h.files.DeleteURL(ctx, rawURL); err != nil {
		logger.Warn("failed to delete orphaned blob", logger.String("url", rawURL), logger.ErrorField(err))
	}
}

// ToggleTrackHandler flips is_active.
func (h *APIHandler) ToggleTrackHandler(w http.ResponseWriter, r *http.Request) {
	track, err := h.trackRepo.ToggleActive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, "toggle track", err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// TrackAnalysisHandler reports which expected fields a track is missing.
func (h *APIHandler) TrackAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	track, err := h.trackRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, "analyze track", err)
		return
	}
	if track == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "track not found"})
		return
	}

	analysis := metadata.AnalyzeTrack(track)
	labels := make(map[string]string, len(metadata.ExpectedFields))
	for _, f := range metadata.ExpectedFields {
		labels[f] = metadata.FieldDisplayName(f)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"track_id": id,
		"analysis": analysis,
		"labels":   labels,
	})
}

// ExtractMetadataHandler runs server-side extraction for an uploaded track.
func (h *APIHandler) ExtractMetadataHandler(w http.ResponseWriter, r *http.Request) {
	var req upload.ExtractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	result, err := h.uploads.ExtractFromURL(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.Error("Error extracting metadata", logger.String("track", req.TrackID), logger.ErrorField(err))
		}
		writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": result})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
