package server

import (
	"errors"
	"io"
	"net/http"
	"path"
	"slices"

	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
	"github.com/lukewaehner/KijayKolder-LinksHub/storage"

	"github.com/gorilla/mux"
)

// FileHandler streams blobs back from object storage at the URLs FileAPI
// hands out.
func (h *APIHandler) FileHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket, name := vars["bucket"], vars["name"]
	if !slices.Contains(storage.Buckets, bucket) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	object, info, err := h.files.Open(r.Context(), bucket, name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		logger.Error("Error reading file from storage", logger.String("bucket", bucket), logger.String("name", name), logger.ErrorField(err))
		http.Error(w, "Storage unavailable", http.StatusBadGateway)
		return
	}
	defer object.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000") // 缓存一年

	// 支持 Range 请求以便拖动播放
	if rs, ok := object.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(name), info.LastModified, rs)
		return
	}
	if _, err := io.Copy(w, object); err != nil {
		logger.Error("Error serving file from storage", logger.ErrorField(err))
	}
}
