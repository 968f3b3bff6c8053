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

// ProfileHandler lets admins list profiles and assign roles.
type ProfileHandler struct {
	profiles *services.ProfileService
	logger   *zap.Logger
}

func NewProfileHandler(profiles *services.ProfileService, logger *zap.Logger) *ProfileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{profiles: profiles, logger: logger}
}

func ProfileRouter(r chi.Router, handler *ProfileHandler, requireAdmin func(http.Handler) http.Handler) {
	r.Use(requireAdmin)
	r.Get("/", handler.ListProfiles)
	r.Get("/{userID}", handler.GetProfile)
	r.Put("/{userID}", handler.PutProfile)
}

type ProfileRequest struct {
	FullName *string    `json:"full_name" validate:"omitempty,max=200"`
	Role     types.Role `json:"role" validate:"required,oneof=admin client"`
}

type ProfileListResponse struct {
	Items []types.Profile `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.profiles.List(r.Context(), offset, limit)
	if err != nil {
		h.logger.Error("list profiles", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	writeJSON(w, http.StatusOK, ProfileListResponse{Items: items, Page: page, Limit: limit})
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.GetProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.Error("get profile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// PutProfile creates or replaces the profile of a user.
func (h *ProfileHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		req.FullName = &name
	}

	saved, err := h.profiles.Save(r.Context(), types.Profile{
		UserID:   chi.URLParam(r, "userID"),
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		h.logger.Error("save profile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
