package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	projectsFile = "projects.json"
	mediaFile    = "media.json"
)

// DataFiles lists the JSON documents kept in the data directory.
var DataFiles = []string{projectsFile, mediaFile}

// FileStore keeps JSON documents in a data directory. Writes replace the
// whole document through a temp file and rename.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the data directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// update loads the named document, applies fn and persists the result when
// fn returns nil. The store lock is held for the whole cycle.
func (s *FileStore) update(name string, v any, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readLocked(name, v); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return s.writeLocked(name, v)
}

func (s *FileStore) read(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(name, v)
}

func (s *FileStore) readLocked(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) writeLocked(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(s.dir, name))
}
