package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/solodesign/apiserver/types"
)

// ProjectRepository handles persistence for projects in the data directory.
type ProjectRepository struct {
	files *FileStore
}

func NewProjectRepository(files *FileStore) *ProjectRepository {
	return &ProjectRepository{files: files}
}

func (r *ProjectRepository) List(ctx context.Context) ([]types.Project, error) {
	var projects []types.Project
	if err := r.files.read(projectsFile, &projects); err != nil {
		return nil, err
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	if projects == nil {
		projects = []types.Project{}
	}
	return projects, nil
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (types.Project, error) {
	var projects []types.Project
	if err := r.files.read(projectsFile, &projects); err != nil {
		return types.Project{}, err
	}
	for _, project := range projects {
		if project.ID == id {
			return project, nil
		}
	}
	return types.Project{}, ErrNotFound
}

func (r *ProjectRepository) Create(ctx context.Context, project types.Project) (types.Project, error) {
	now := time.Now().UTC()
	project.ID = uuid.NewString()
	project.CreatedAt = now
	project.UpdatedAt = now

	var projects []types.Project
	err := r.files.update(projectsFile, &projects, func() error {
		projects = append(projects, project)
		return nil
	})
	if err != nil {
		return types.Project{}, err
	}
	return project, nil
}

func (r *ProjectRepository) Update(ctx context.Context, project types.Project) (types.Project, error) {
	var projects []types.Project
	err := r.files.update(projectsFile, &projects, func() error {
		for i := range projects {
			if projects[i].ID != project.ID {
				continue
			}
			project.CreatedAt = projects[i].CreatedAt
			project.UpdatedAt = time.Now().UTC()
			projects[i] = project
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return types.Project{}, err
	}
	return project, nil
}

// AttachMedia appends a media filename to the project's media list.
func (r *ProjectRepository) AttachMedia(ctx context.Context, id, filename string) error {
	var projects []types.Project
	return r.files.update(projectsFile, &projects, func() error {
		for i := range projects {
			if projects[i].ID != id {
				continue
			}
			projects[i].Media = append(projects[i].Media, filename)
			projects[i].UpdatedAt = time.Now().UTC()
			return nil
		}
		return ErrNotFound
	})
}

// DetachMedia removes a media filename from every project referencing it.
func (r *ProjectRepository) DetachMedia(ctx context.Context, filename string) error {
	var projects []types.Project
	return r.files.update(projectsFile, &projects, func() error {
		for i := range projects {
			kept := projects[i].Media[:0]
			for _, name := range projects[i].Media {
				if name != filename {
					kept = append(kept, name)
				}
			}
			projects[i].Media = kept
		}
		return nil
	})
}

func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	var projects []types.Project
	return r.files.update(projectsFile, &projects, func() error {
		for i := range projects {
			if projects[i].ID == id {
				projects = append(projects[:i], projects[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}
