// Package media validates, stores, serves and deletes uploaded files.
package media

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/solodesign/apiserver/internal/observability"
	"github.com/solodesign/apiserver/internal/storage"
	"github.com/solodesign/apiserver/internal/store"
	"github.com/solodesign/apiserver/types"
	"go.uber.org/zap"
)

// MaxUploadSize is the largest accepted upload.
const MaxUploadSize int64 = 50 << 20

// URLPrefix is where stored files are served from.
const URLPrefix = "/uploads/"

var (
	ErrTooLarge        = errors.New("file exceeds the 50MB limit")
	ErrTypeNotAllowed  = errors.New("file type not allowed")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrNotFound        = errors.New("media not found")
)

var allowedTypes = map[string]types.MediaType{
	"image/jpeg":      types.MediaImage,
	"image/jpg":       types.MediaImage,
	"image/png":       types.MediaImage,
	"image/gif":       types.MediaImage,
	"image/webp":      types.MediaImage,
	"image/svg+xml":   types.MediaImage,
	"video/mp4":       types.MediaVideo,
	"video/webm":      types.MediaVideo,
	"video/quicktime": types.MediaVideo,
	"video/x-msvideo": types.MediaVideo,
	"video/ogg":       types.MediaVideo,
}

// extensionTypes maps served file extensions to Content-Type.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".ogg":  "video/ogg",
	".ogv":  "video/ogg",
}

var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",
	"video/ogg":       ".ogv",
}

// Allowed reports whether mimeType may be uploaded.
func Allowed(mimeType string) bool {
	_, ok := allowedTypes[normalizeMIME(mimeType)]
	return ok
}

// ContentTypeFor picks the response Content-Type from the file extension.
func ContentTypeFor(filename string) string {
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ValidFilename rejects names that could step outside the upload directory.
func ValidFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || strings.ContainsRune(name, 0) {
		return false
	}
	return true
}

// Index is the metadata store for uploaded files.
type Index interface {
	List(ctx context.Context, projectID string) ([]types.MediaFile, error)
	Create(ctx context.Context, media types.MediaFile) (types.MediaFile, error)
	Find(ctx context.Context, key string) (types.MediaFile, error)
	Delete(ctx context.Context, filename string) error
}

// ProjectLinker keeps project media lists in step with uploads.
type ProjectLinker interface {
	AttachMedia(ctx context.Context, id, filename string) error
	DetachMedia(ctx context.Context, filename string) error
}

type EventPublisher interface {
	Publish(event types.Event)
}

// Service is the upload/serve/delete path for media files.
type Service struct {
	objects  storage.ObjectStorage
	index    Index
	projects ProjectLinker
	events   EventPublisher
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
	random   io.Reader
}

func NewService(objects storage.ObjectStorage, index Index, projects ProjectLinker, events EventPublisher, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		objects:  objects,
		index:    index,
		projects: projects,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		random:   rand.Reader,
	}
}

// Incoming is one uploaded file as read from the request.
type Incoming struct {
	ProjectID   string
	Filename    string
	ContentType string
	// Size is the declared length, or -1 when the client did not send one.
	Size int64
	Body io.Reader
}

// Upload validates the file, writes it to storage and records it. The type is
// checked before the size, and nothing is written when either check fails.
// The body is held in memory, bounded by MaxUploadSize, until it is known to
// fit.
func (s *Service) Upload(ctx context.Context, in Incoming) (types.MediaFile, error) {
	mimeType := normalizeMIME(in.ContentType)
	mediaType, ok := allowedTypes[mimeType]
	if !ok {
		s.metrics.UploadOutcome("type_rejected")
		return types.MediaFile{}, fmt.Errorf("%w: %q", ErrTypeNotAllowed, mimeType)
	}
	if in.Size > MaxUploadSize {
		s.metrics.UploadOutcome("too_large")
		return types.MediaFile{}, ErrTooLarge
	}

	data, err := ReadLimited(in.Body)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			s.metrics.UploadOutcome("too_large")
		} else {
			s.metrics.UploadOutcome("error")
		}
		return types.MediaFile{}, err
	}

	filename, err := s.newFilename(in.Filename, mimeType)
	if err != nil {
		s.metrics.UploadOutcome("error")
		return types.MediaFile{}, err
	}

	size := int64(len(data))
	if err := s.objects.Put(ctx, filename, bytes.NewReader(data), size, mimeType); err != nil {
		s.metrics.UploadOutcome("error")
		return types.MediaFile{}, fmt.Errorf("store upload: %w", err)
	}

	record := types.MediaFile{
		ID:           uuid.NewString(),
		Filename:     filename,
		OriginalName: path.Base(filepath.ToSlash(in.Filename)),
		URL:          URLPrefix + filename,
		Type:         mediaType,
		MimeType:     mimeType,
		Size:         size,
		ProjectID:    in.ProjectID,
		UploadedAt:   s.now().UTC(),
	}
	if s.index != nil {
		if _, err := s.index.Create(ctx, record); err != nil {
			s.logger.Error("record upload metadata", zap.String("filename", filename), zap.Error(err))
		}
	}
	if in.ProjectID != "" && s.projects != nil {
		if err := s.projects.AttachMedia(ctx, in.ProjectID, filename); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("attach media to project", zap.String("project_id", in.ProjectID), zap.Error(err))
		}
	}

	s.metrics.UploadOutcome("stored")
	s.publish(types.EventMediaUploaded, record)
	return record, nil
}

// ReadLimited reads r into memory and fails with ErrTooLarge once it passes
// MaxUploadSize. A tripped http.MaxBytesReader is reported the same way.
func ReadLimited(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > MaxUploadSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Open returns the stored bytes and Content-Type for filename.
func (s *Service) Open(ctx context.Context, filename string) (io.ReadCloser, string, error) {
	if !ValidFilename(filename) {
		return nil, "", ErrInvalidFilename
	}
	rc, err := s.objects.Get(ctx, filename)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return rc, ContentTypeFor(filename), nil
}

// Delete removes a file by stored filename or by record id. Removing a file
// that is already gone succeeds without announcing anything.
func (s *Service) Delete(ctx context.Context, key string) error {
	filename := key
	var record *types.MediaFile
	if s.index != nil {
		if found, err := s.index.Find(ctx, key); err == nil {
			filename = found.Filename
			record = &found
		}
	}
	if !ValidFilename(filename) {
		return ErrInvalidFilename
	}

	existed := record != nil
	if !existed {
		if rc, err := s.objects.Get(ctx, filename); err == nil {
			_ = rc.Close()
			existed = true
		}
	}

	if err := s.objects.Delete(ctx, filename); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete object: %w", err)
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, filename); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete metadata: %w", err)
		}
	}
	if s.projects != nil {
		if err := s.projects.DetachMedia(ctx, filename); err != nil {
			s.logger.Warn("detach media from projects", zap.String("filename", filename), zap.Error(err))
		}
	}

	switch {
	case record != nil:
		s.publish(types.EventMediaDeleted, *record)
	case existed:
		s.publish(types.EventMediaDeleted, types.MediaFile{Filename: filename, URL: URLPrefix + filename})
	}
	return nil
}

// List returns media records for a project, or all records.
func (s *Service) List(ctx context.Context, projectID string) ([]types.MediaFile, error) {
	if s.index == nil {
		return []types.MediaFile{}, nil
	}
	return s.index.List(ctx, projectID)
}

// newFilename builds "<unix-millis>-<8 hex><ext>".
func (s *Service) newFilename(original, mimeType string) (string, error) {
	var suffix [4]byte
	if _, err := io.ReadFull(s.random, suffix[:]); err != nil {
		return "", fmt.Errorf("generate filename: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(original))
	if len(ext) < 2 || !ValidFilename("x"+ext) {
		ext = mimeExtensions[mimeType]
	}
	return strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + hex.EncodeToString(suffix[:]) + ext, nil
}

func (s *Service) publish(kind types.EventKind, record types.MediaFile) {
	if s.events == nil {
		return
	}
	s.events.Publish(types.Event{Kind: kind, ProjectID: record.ProjectID, Media: &record})
}

func normalizeMIME(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mimeType))
}
