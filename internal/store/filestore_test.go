package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/solodesign/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFiles(t *testing.T) *FileStore {
	t.Helper()
	files, err := NewFileStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	return files
}

func TestProjectRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(newFiles(t))

	projects, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.NotNil(t, projects)

	created, err := repo.Create(ctx, types.Project{
		Title:        "Harbor",
		Media:        []string{},
		CustomFields: map[string]types.FieldValue{"budget": types.NumberValue(900)},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Harbor", got.Title)
	budget, ok := got.CustomFields["budget"].AsNumber()
	require.True(t, ok)
	assert.Equal(t, 900.0, budget)

	got.Title = "Harbor Redux"
	updated, err := repo.Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	require.NoError(t, repo.AttachMedia(ctx, created.ID, "1-aa.png"))
	require.NoError(t, repo.AttachMedia(ctx, created.ID, "2-bb.png"))
	require.NoError(t, repo.DetachMedia(ctx, "1-aa.png"))
	got, err = repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2-bb.png"}, got.Media)

	assert.ErrorIs(t, repo.AttachMedia(ctx, "missing", "x.png"), ErrNotFound)
	_, err = repo.Update(ctx, types.Project{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Delete(ctx, created.ID))
	assert.ErrorIs(t, repo.Delete(ctx, created.ID), ErrNotFound)
	_, err = repo.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMediaRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMediaRepository(newFiles(t))

	_, err := repo.Create(ctx, types.MediaFile{ID: "m-1", Filename: "1-aa.png", ProjectID: "p-1"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, types.MediaFile{ID: "m-2", Filename: "2-bb.mp4"})
	require.NoError(t, err)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	scoped, err := repo.List(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "1-aa.png", scoped[0].Filename)

	byID, err := repo.Find(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, "2-bb.mp4", byID.Filename)
	byName, err := repo.Find(ctx, "1-aa.png")
	require.NoError(t, err)
	assert.Equal(t, "m-1", byName.ID)

	require.NoError(t, repo.Delete(ctx, "1-aa.png"))
	assert.ErrorIs(t, repo.Delete(ctx, "1-aa.png"), ErrNotFound)
	_, err = repo.Find(ctx, "m-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	files := newFiles(t)
	repo := NewMediaRepository(files)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, types.MediaFile{ID: string(rune('a' + i)), Filename: string(rune('a'+i)) + ".png"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 20)

	entries, err := os.ReadDir(files.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	files := newFiles(t)
	require.NoError(t, os.WriteFile(filepath.Join(files.Dir(), projectsFile), []byte("{not json"), 0o644))

	_, err := NewProjectRepository(files).List(context.Background())
	assert.Error(t, err)
}
