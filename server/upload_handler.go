package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/ingest"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/upload"
)

// multipartMemory is how much of a drop is buffered in memory before the
// rest spills to temp files.
const multipartMemory = 32 << 20

// readUploads loads every "files" part of a multipart request.
func (h *APIHandler) readUploads(w http.ResponseWriter, r *http.Request) ([]upload.File, error) {
	if h.cfg.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, invalid("Failed to parse multipart form: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return nil, invalid("Missing 'files' in form")
	}

	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) (upload.File, error) {
	src, err := fh.Open()
	if err != nil {
		return upload.File{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return upload.File{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = ingest.ContentType(fh.Filename, data)
	}
	return upload.File{Name: fh.Filename, ContentType: ct, Data: data}, nil
}

// UploadsHandler returns the progress of every upload this process has seen.
func (h *APIHandler) UploadsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.uploads.Progress().Snapshot())
}

// ClearUploadsHandler forgets finished uploads.
func (h *APIHandler) ClearUploadsHandler(w http.ResponseWriter, r *http.Request) {
	removed := h.uploads.Progress().Prune(time.Now())
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
