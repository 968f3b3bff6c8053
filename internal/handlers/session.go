package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/solodesign/apiserver/internal/authstate"
	"github.com/solodesign/apiserver/internal/identity"
	"github.com/solodesign/apiserver/internal/roles"
	"github.com/solodesign/apiserver/types"
	"go.uber.org/zap"
)

const authFailedPath = roles.LoginPath + "?error=auth_failed"

// SessionHandler serves the magic-link flow, the session view and the
// role-routed dashboards.
type SessionHandler struct {
	client   *identity.Client
	verifier identity.TokenVerifier
	profiles authstate.ProfileLookup
	siteURL  string
	cookies  identity.CookieOptions
	logger   *zap.Logger
}

func NewSessionHandler(
	client *identity.Client,
	verifier identity.TokenVerifier,
	profiles authstate.ProfileLookup,
	siteURL string,
	cookies identity.CookieOptions,
	logger *zap.Logger,
) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		client:   client,
		verifier: verifier,
		profiles: profiles,
		siteURL:  strings.TrimRight(siteURL, "/"),
		cookies:  cookies,
		logger:   logger,
	}
}

// SessionRouter registers the provider-session API under /api/auth.
func SessionRouter(r chi.Router, handler *SessionHandler, magicLinkLimiter func(http.Handler) http.Handler) {
	if magicLinkLimiter != nil {
		r.With(magicLinkLimiter).Post("/magic-link", handler.MagicLink)
	} else {
		r.Post("/magic-link", handler.MagicLink)
	}
	r.Get("/session", handler.Session)
	r.Post("/signout", handler.SignOut)
}

// DashboardRouter registers the dashboard entry points. The routing guard
// has already checked the session by the time these run.
func DashboardRouter(r chi.Router, handler *SessionHandler) {
	r.Get("/", handler.Dashboard)
	r.Get("/{role}", handler.DashboardView)
	r.Get("/{role}/*", handler.DashboardView)
}

type MagicLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type SessionResponse struct {
	User    *types.AuthUser `json:"user"`
	Loading bool            `json:"loading"`
}

type DashboardResponse struct {
	User *types.AuthUser `json:"user"`
	Role types.Role      `json:"role"`
}

// newTracker builds the per-request session source and auth context.
func (h *SessionHandler) newTracker(w http.ResponseWriter, r *http.Request) (*identity.RequestSession, *authstate.Tracker) {
	source := identity.NewRequestSession(h.client, h.verifier, h.logger, w, r, h.cookies)
	return source, authstate.NewTracker(source, h.profiles, h.logger)
}

func (h *SessionHandler) MagicLink(w http.ResponseWriter, r *http.Request) {
	var req MagicLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	redirectTo := h.siteURL + "/auth/callback"
	verifier, err := h.client.SendMagicLink(r.Context(), strings.TrimSpace(req.Email), redirectTo)
	if err != nil {
		var apiErr *identity.APIError
		if errors.As(err, &apiErr) {
			writeError(w, http.StatusBadRequest, "could not send magic link")
			return
		}
		h.logger.Error("send magic link", zap.Error(err))
		writeError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}

	source, _ := h.newTracker(w, r)
	source.SetVerifier(verifier)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Check your email for the login link!"})
}

// Callback finishes the magic-link flow and sends the user to the dashboard
// for their role. Any failure lands on the login page.
func (h *SessionHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		http.Redirect(w, r, authFailedPath, http.StatusFound)
		return
	}

	source, tracker := h.newTracker(w, r)
	defer tracker.Close()

	verifier := source.TakeVerifier()
	tokens, err := h.client.ExchangeCode(r.Context(), code, verifier)
	if err != nil {
		h.logger.Warn("exchange auth code", zap.Error(err))
		http.Redirect(w, r, authFailedPath, http.StatusFound)
		return
	}

	if err := tracker.Start(r.Context()); err != nil {
		h.logger.Warn("resolve session before sign-in", zap.Error(err))
	}
	router := roles.NewRouter(roles.HTTPNavigator{W: w, R: r})
	stop := router.Follow(tracker)
	defer stop()

	source.Establish(tokens)
	if !router.Redirected() {
		http.Redirect(w, r, authFailedPath, http.StatusFound)
	}
}

// Session reports the resolved user, or null when signed out.
func (h *SessionHandler) Session(w http.ResponseWriter, r *http.Request) {
	_, tracker := h.newTracker(w, r)
	defer tracker.Close()

	if err := tracker.Start(r.Context()); err != nil {
		h.logger.Warn("resolve session", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, SessionResponse{User: tracker.CurrentUser(), Loading: tracker.Loading()})
}

// SignOut always clears the local session. A provider failure is reported
// as a notice, not an error.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	_, tracker := h.newTracker(w, r)
	defer tracker.Close()

	if err := tracker.Start(r.Context()); err != nil {
		h.logger.Warn("resolve session before sign-out", zap.Error(err))
	}
	if err := tracker.SignOut(r.Context()); err != nil {
		var signOutErr *authstate.SignOutError
		if errors.As(err, &signOutErr) {
			writeJSON(w, http.StatusOK, SuccessResponse{
				Success: true,
				Notice:  "Signed out locally, but the identity provider could not be reached.",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to sign out")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Dashboard redirects to the dashboard for the caller's role.
func (h *SessionHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	_, tracker := h.newTracker(w, r)
	defer tracker.Close()

	if err := tracker.Start(r.Context()); err != nil {
		h.logger.Warn("resolve session", zap.Error(err))
	}
	roles.NewRouter(roles.HTTPNavigator{W: w, R: r}).Route(tracker.CurrentUser())
}

// DashboardView serves a role dashboard, or corrects the path when it is
// not the caller's.
func (h *SessionHandler) DashboardView(w http.ResponseWriter, r *http.Request) {
	_, tracker := h.newTracker(w, r)
	defer tracker.Close()

	if err := tracker.Start(r.Context()); err != nil {
		h.logger.Warn("resolve session", zap.Error(err))
	}
	user := tracker.CurrentUser()
	router := roles.NewRouter(roles.HTTPNavigator{W: w, R: r})
	if router.Enforce(r.URL.Path, user) {
		return
	}
	writeJSON(w, http.StatusOK, DashboardResponse{User: user, Role: user.Role()})
}
