package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/solodesign/apiserver/internal/media"
	"github.com/solodesign/apiserver/types"
	"go.uber.org/zap"
)

const (
	formFieldFile      = "file"
	formFieldProjectID = "projectId"

	// multipart framing allowance on top of the file limit
	uploadOverhead = 1 << 20
	maxFieldSize   = 4 << 10

	msgTooLarge = "File too large. Maximum size is 50MB."
)

// MediaHandler serves the upload API and the public uploads tree.
type MediaHandler struct {
	service *media.Service
	logger  *zap.Logger
}

func NewMediaHandler(service *media.Service, logger *zap.Logger) *MediaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaHandler{service: service, logger: logger}
}

// MediaRouter registers the upload API. requireAdmin guards mutations.
func MediaRouter(r chi.Router, handler *MediaHandler, requireAdmin func(http.Handler) http.Handler) {
	r.With(requireAdmin).Post("/", handler.Upload)
	r.With(requireAdmin).Delete("/", handler.Delete)
}

type UploadResponse struct {
	File types.MediaFile `json:"file"`
}

type MediaListResponse struct {
	Items []types.MediaFile `json:"items"`
}

// Upload reads the multipart body part by part without spilling to disk. The
// file part's declared type is checked from its headers before any of its
// bytes are read, and an oversized request is refused before the file is read.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadSize+uploadOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var (
		projectID string
		file      *media.Incoming
	)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeFormError(w, err)
			return
		}

		switch {
		case part.FormName() == formFieldProjectID:
			value, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
			if err != nil {
				writeFormError(w, err)
				return
			}
			projectID = strings.TrimSpace(string(value))
		case part.FormName() == formFieldFile && file == nil:
			contentType := part.Header.Get("Content-Type")
			if !media.Allowed(contentType) {
				h.writeUploadError(w, media.ErrTypeNotAllowed)
				return
			}
			if r.ContentLength > media.MaxUploadSize+uploadOverhead {
				h.writeUploadError(w, media.ErrTooLarge)
				return
			}
			data, err := media.ReadLimited(part)
			if err != nil {
				writeFormError(w, err)
				return
			}
			file = &media.Incoming{
				Filename:    part.FileName(),
				ContentType: contentType,
				Size:        int64(len(data)),
				Body:        bytes.NewReader(data),
			}
		}
		_ = part.Close()
	}

	if file == nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	file.ProjectID = projectID

	record, err := h.service.Upload(r.Context(), *file)
	if err != nil {
		h.writeUploadError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{File: record})
}

// writeFormError reports a failure while reading the multipart body.
func writeFormError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.Is(err, media.ErrTooLarge) || errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid multipart form")
}

func (h *MediaHandler) writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, media.ErrTypeNotAllowed):
		writeError(w, http.StatusBadRequest, "File type not allowed. Upload an image or video.")
	case errors.Is(err, media.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
	default:
		h.logger.Error("upload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to upload file")
	}
}

// Delete removes a file named by ?filename= or ?id=.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("filename"))
	if key == "" {
		key = strings.TrimSpace(r.URL.Query().Get("id"))
	}
	if key == "" {
		writeError(w, http.StatusBadRequest, "filename or id is required")
		return
	}

	if err := h.service.Delete(r.Context(), key); err != nil {
		if errors.Is(err, media.ErrInvalidFilename) {
			writeError(w, http.StatusBadRequest, "invalid filename")
			return
		}
		h.logger.Error("delete failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete file")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// List returns media records, optionally filtered by ?projectId=.
func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("projectId")))
	if err != nil {
		h.logger.Error("list media", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list media")
		return
	}
	writeJSON(w, http.StatusOK, MediaListResponse{Items: items})
}

// Serve streams a stored file. Unknown and unsafe names are both 404.
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.service.Open(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		if !errors.Is(err, media.ErrNotFound) && !errors.Is(err, media.ErrInvalidFilename) {
			h.logger.Error("open upload", zap.Error(err))
		}
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream upload", zap.Error(err))
	}
}
