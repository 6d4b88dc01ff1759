package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lukewaehner/KijayKolder-LinksHub/config"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/auth"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/realtime"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/upload"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
	"github.com/lukewaehner/KijayKolder-LinksHub/repository"
	"github.com/lukewaehner/KijayKolder-LinksHub/storage"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	trackRepo repository.TrackRepository
	videoRepo repository.VideoRepository
	files     *storage.FileAPI
	uploads   *upload.Orchestrator
	auth      *auth.Authenticator
	hub       *realtime.Hub
	cfg       *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	videoRepo repository.VideoRepository,
	files *storage.FileAPI,
	uploads *upload.Orchestrator,
	authenticator *auth.Authenticator,
	hub *realtime.Hub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo: trackRepo,
		videoRepo: videoRepo,
		files:     files,
		uploads:   uploads,
		auth:      authenticator,
		hub:       hub,
		cfg:       cfg,
	}
}

// ValidationError is a request that is missing or misusing a field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

// statusFor maps an error to the status the API reports it with.
func statusFor(err error) int {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, upload.ErrMissingParameters):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidPassword):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, storage.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicate), errors.Is(err, storage.ErrObjectExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err as {"error": ...}. Server-side failures are logged
// and, in the body, prefixed with what the handler was doing.
func writeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("action", action),
			logger.ErrorField(err))
		msg = fmt.Sprintf("Failed to %s: %v", action, err)
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return invalid("Invalid request body")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalid("Invalid request body: %v", err)
	}
	return nil
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid("%s is required", name)
	}
	return nil
}
