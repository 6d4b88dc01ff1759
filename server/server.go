package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/logger"

	"github.com/gorilla/mux"
)

// NewRouter wires every endpoint onto a gorilla/mux router.
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware, requestLogMiddleware)

	admin := h.AdminMiddleware

	// 管理员认证
	router.HandleFunc("/admin/auth", h.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/admin/auth", h.LogoutHandler).Methods(http.MethodDelete)
	router.HandleFunc("/admin/verify", h.VerifyHandler).Methods(http.MethodGet)

	// 公开目录
	router.HandleFunc("/tracks", h.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/videos", h.GetVideosHandler).Methods(http.MethodGet)
	router.HandleFunc("/videos/active", h.ActiveVideoHandler).Methods(http.MethodGet)
	router.HandleFunc("/files/{bucket}/{name:.+}", h.FileHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/ws", h.ChangeFeedHandler).Methods(http.MethodGet)

	router.HandleFunc("/extract-metadata", admin(h.ExtractMetadataHandler)).Methods(http.MethodPost)
	router.HandleFunc("/switch-active-video", admin(h.SwitchActiveVideoHandler)).Methods(http.MethodPost)
	router.HandleFunc("/set-hibachi-active", admin(h.ActivateVideoByNameHandler("hibachi", "Hibachi"))).Methods(http.MethodPost)
	router.HandleFunc("/set-ecstasy-active", admin(h.ActivateVideoByNameHandler("ecstasy", "Ecstasy"))).Methods(http.MethodPost)

	// 曲目管理
	router.HandleFunc("/admin/tracks", admin(h.AdminTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/admin/tracks", admin(h.BulkDeleteTracksHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/admin/tracks/upload", admin(h.UploadTracksHandler)).Methods(http.MethodPost)
	router.HandleFunc("/admin/tracks/{id}", admin(h.UpdateTrackHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/admin/tracks/{id}", admin(h.DeleteTrackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/admin/tracks/{id}/toggle", admin(h.ToggleTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/admin/tracks/{id}/analysis", admin(h.TrackAnalysisHandler)).Methods(http.MethodGet)

	// 背景视频管理
	router.HandleFunc("/admin/videos", admin(h.GetVideosHandler)).Methods(http.MethodGet)
	router.HandleFunc("/admin/videos", admin(h.CreateVideoHandler)).Methods(http.MethodPost)
	router.HandleFunc("/admin/videos/upload", admin(h.UploadVideosHandler)).Methods(http.MethodPost)
	router.HandleFunc("/admin/videos/{id}", admin(h.UpdateVideoHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/admin/videos/{id}", admin(h.DeleteVideoHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/admin/videos/{id}/activate", admin(h.ActivateVideoHandler)).Methods(http.MethodPost)

	router.HandleFunc("/admin/uploads", admin(h.UploadsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/admin/uploads", admin(h.ClearUploadsHandler)).Methods(http.MethodDelete)

	// 预检请求只经过 CORS 中间件
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	return router
}

// 添加 CORS 中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			// cookies are only sent cross-origin when the origin is echoed
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("elapsed", time.Since(start)))
	})
}

// Server owns the HTTP listener.
type Server struct {
	httpServer *http.Server
}

// New 创建 HTTP 服务器
func New(addr string, h *APIHandler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(h),
			ReadTimeout:  5 * time.Minute, // 大文件上传
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return <-errCh
}
