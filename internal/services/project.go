package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/solodesign/apiserver/types"
)

// ProjectRepository defines persistence operations for projects.
type ProjectRepository interface {
	List(ctx context.Context) ([]types.Project, error)
	Get(ctx context.Context, id string) (types.Project, error)
	Create(ctx context.Context, project types.Project) (types.Project, error)
	Update(ctx context.Context, project types.Project) (types.Project, error)
	Delete(ctx context.Context, id string) error
}

// EventPublisher receives change notifications.
type EventPublisher interface {
	Publish(event types.Event)
}

// ProjectService encapsulates project use-cases and announces changes.
type ProjectService struct {
	repo   ProjectRepository
	events EventPublisher
}

func NewProjectService(repo ProjectRepository, events EventPublisher) *ProjectService {
	return &ProjectService{repo: repo, events: events}
}

func (s *ProjectService) List(ctx context.Context) ([]types.Project, error) {
	return s.repo.List(ctx)
}

func (s *ProjectService) Get(ctx context.Context, id string) (types.Project, error) {
	return s.repo.Get(ctx, id)
}

func (s *ProjectService) Create(ctx context.Context, project types.Project) (types.Project, error) {
	if project.Slug == "" {
		project.Slug = Slugify(project.Title)
	}
	if project.Media == nil {
		project.Media = []string{}
	}
	created, err := s.repo.Create(ctx, project)
	if err != nil {
		return types.Project{}, err
	}
	s.publish(types.EventProjectCreated, created)
	return created, nil
}

// Update replaces the editable fields of an existing project. Media
// attachments are managed by uploads and are kept as stored.
func (s *ProjectService) Update(ctx context.Context, project types.Project) (types.Project, error) {
	existing, err := s.repo.Get(ctx, project.ID)
	if err != nil {
		return types.Project{}, err
	}
	if project.Slug == "" {
		project.Slug = Slugify(project.Title)
	}
	project.Media = existing.Media

	updated, err := s.repo.Update(ctx, project)
	if err != nil {
		return types.Project{}, err
	}
	s.publish(types.EventProjectUpdated, updated)
	return updated, nil
}

func (s *ProjectService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.events != nil {
		s.events.Publish(types.Event{Kind: types.EventProjectDeleted, ProjectID: id})
	}
	return nil
}

func (s *ProjectService) publish(kind types.EventKind, project types.Project) {
	if s.events == nil {
		return
	}
	s.events.Publish(types.Event{Kind: kind, ProjectID: project.ID, Project: &project})
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases title and joins its alphanumeric runs with dashes.
func Slugify(title string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
}
