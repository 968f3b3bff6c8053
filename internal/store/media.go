package store

import (
	"context"

	"github.com/solodesign/apiserver/types"
)

// MediaRepository keeps the metadata index of uploaded files.
type MediaRepository struct {
	files *FileStore
}

func NewMediaRepository(files *FileStore) *MediaRepository {
	return &MediaRepository{files: files}
}

// List returns media for a project, or every record when projectID is empty.
func (r *MediaRepository) List(ctx context.Context, projectID string) ([]types.MediaFile, error) {
	var records []types.MediaFile
	if err := r.files.read(mediaFile, &records); err != nil {
		return nil, err
	}
	out := make([]types.MediaFile, 0, len(records))
	for _, record := range records {
		if projectID == "" || record.ProjectID == projectID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *MediaRepository) Create(ctx context.Context, media types.MediaFile) (types.MediaFile, error) {
	var records []types.MediaFile
	err := r.files.update(mediaFile, &records, func() error {
		records = append(records, media)
		return nil
	})
	if err != nil {
		return types.MediaFile{}, err
	}
	return media, nil
}

// Find looks a record up by filename or by id.
func (r *MediaRepository) Find(ctx context.Context, key string) (types.MediaFile, error) {
	var records []types.MediaFile
	if err := r.files.read(mediaFile, &records); err != nil {
		return types.MediaFile{}, err
	}
	for _, record := range records {
		if record.Filename == key || record.ID == key {
			return record, nil
		}
	}
	return types.MediaFile{}, ErrNotFound
}

func (r *MediaRepository) Delete(ctx context.Context, filename string) error {
	var records []types.MediaFile
	return r.files.update(mediaFile, &records, func() error {
		for i := range records {
			if records[i].Filename == filename {
				records = append(records[:i], records[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}
