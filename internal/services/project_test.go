package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/solodesign/apiserver/internal/store"
	"github.com/solodesign/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []types.Event
}

func (p *recordingPublisher) Publish(event types.Event) {
	p.events = append(p.events, event)
}

func newProjectService(t *testing.T) (*ProjectService, *store.ProjectRepository, *recordingPublisher) {
	t.Helper()
	files, err := store.NewFileStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	repo := store.NewProjectRepository(files)
	pub := &recordingPublisher{}
	return NewProjectService(repo, pub), repo, pub
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Acme Rebrand":         "acme-rebrand",
		"  Hello,   World!  ":  "hello-world",
		"Café 2024 / Identity": "caf-2024-identity",
		"---":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestProjectCreateUpdateDelete(t *testing.T) {
	svc, repo, pub := newProjectService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, types.Project{Title: "North Star"})
	require.NoError(t, err)
	assert.Equal(t, "north-star", created.Slug)
	assert.NotNil(t, created.Media)

	require.NoError(t, repo.AttachMedia(ctx, created.ID, "1-ab.png"))

	updated, err := svc.Update(ctx, types.Project{ID: created.ID, Title: "North Star II", Slug: "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", updated.Slug)
	assert.Equal(t, []string{"1-ab.png"}, updated.Media)

	_, err = svc.Update(ctx, types.Project{ID: "missing", Title: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), store.ErrNotFound)

	require.Len(t, pub.events, 3)
	assert.Equal(t, types.EventProjectCreated, pub.events[0].Kind)
	assert.Equal(t, types.EventProjectUpdated, pub.events[1].Kind)
	assert.Equal(t, types.EventProjectDeleted, pub.events[2].Kind)
	assert.Equal(t, created.ID, pub.events[2].ProjectID)
}
