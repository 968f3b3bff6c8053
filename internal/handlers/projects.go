package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/solodesign/apiserver/internal/services"
	"github.com/solodesign/apiserver/internal/store"
	"github.com/solodesign/apiserver/types"
	"go.uber.org/zap"
)

// ProjectHandler provides HTTP handlers for portfolio projects.
type ProjectHandler struct {
	projects *services.ProjectService
	media    *MediaHandler
	logger   *zap.Logger
}

func NewProjectHandler(projects *services.ProjectService, media *MediaHandler, logger *zap.Logger) *ProjectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectHandler{projects: projects, media: media, logger: logger}
}

// ProjectRouter registers project routes. Reads are public.
func ProjectRouter(r chi.Router, handler *ProjectHandler, requireAdmin func(http.Handler) http.Handler) {
	r.Get("/", handler.ListProjects)
	r.With(requireAdmin).Post("/", handler.CreateProject)
	r.Route("/{projectID}", func(r chi.Router) {
		r.Get("/", handler.GetProject)
		if handler.media != nil {
			r.Get("/media", handler.ListProjectMedia)
		}
		r.With(requireAdmin).Put("/", handler.UpdateProject)
		r.With(requireAdmin).Delete("/", handler.DeleteProject)
	})
}

type ProjectRequest struct {
	Title        string                      `json:"title" validate:"required,max=200"`
	Slug         string                      `json:"slug" validate:"omitempty,max=200"`
	Description  string                      `json:"description"`
	Category     string                      `json:"category" validate:"max=100"`
	Client       string                      `json:"client" validate:"max=200"`
	Year         int                         `json:"year" validate:"omitempty,gte=1900,lte=2100"`
	Featured     bool                        `json:"featured"`
	CoverImage   string                      `json:"coverImage"`
	CustomFields map[string]types.FieldValue `json:"customFields"`
}

func (req ProjectRequest) project(id string) types.Project {
	return types.Project{
		ID:           id,
		Title:        strings.TrimSpace(req.Title),
		Slug:         strings.TrimSpace(req.Slug),
		Description:  req.Description,
		Category:     req.Category,
		Client:       req.Client,
		Year:         req.Year,
		Featured:     req.Featured,
		CoverImage:   req.CoverImage,
		CustomFields: req.CustomFields,
	}
}

type ProjectListResponse struct {
	Items []types.Project `json:"items"`
	Total int             `json:"total"`
}

func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	items, err := h.projects.List(r.Context())
	if err != nil {
		h.logger.Error("list projects", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	writeJSON(w, http.StatusOK, ProjectListResponse{Items: items, Total: len(items)})
}

func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.Get(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeStoreError(w, err, "failed to fetch project")
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) ListProjectMedia(w http.ResponseWriter, r *http.Request) {
	if _, err := h.projects.Get(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		h.writeStoreError(w, err, "failed to fetch project")
		return
	}
	q := r.URL.Query()
	q.Set("projectId", chi.URLParam(r, "projectID"))
	r.URL.RawQuery = q.Encode()
	h.media.List(w, r)
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.projects.Create(r.Context(), req.project(""))
	if err != nil {
		h.logger.Error("create project", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.projects.Update(r.Context(), req.project(chi.URLParam(r, "projectID")))
	if err != nil {
		h.writeStoreError(w, err, "failed to update project")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.Delete(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		h.writeStoreError(w, err, "failed to delete project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) writeStoreError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	h.logger.Error(message, zap.Error(err))
	writeError(w, http.StatusInternalServerError, message)
}
