package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/solodesign/apiserver/config"
)

// ErrObjectNotFound is returned by backends when the requested key is absent.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines common object operations across backends.
// Get and Delete report missing keys as ErrObjectNotFound where the backend
// can tell; object stores that delete idempotently return nil instead.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
	name    string
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(name string, backend ObjectStorage) *Storage {
	return &Storage{backend: backend, name: name}
}

// Open selects and initializes the backend named in the media config.
func Open(ctx context.Context, cfg config.Config) (*Storage, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Media.Backend))
	var (
		backend ObjectStorage
		err     error
	)
	switch name {
	case "", "local":
		name = "local"
		backend, err = NewLocalStorage(cfg.Media.UploadDir)
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case "s3":
		backend, err = NewS3Client(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Media.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", name, err)
	}

	s := NewStorage(name, backend)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure %s bucket: %w", name, err)
	}
	return s, nil
}

// Name returns the backend name ("local", "minio", "gcs" or "s3").
func (s *Storage) Name() string {
	return s.name
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
