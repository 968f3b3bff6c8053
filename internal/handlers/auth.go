package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/solodesign/apiserver/internal/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthConfig configures the legacy password login.
type AdminAuthConfig struct {
	Password      string
	PasswordHash  string
	TokenSecret   string
	TokenTTL      time.Duration
	SecureCookies bool
}

// AdminAuthHandler provides the legacy admin login endpoints.
type AdminAuthHandler struct {
	cfg      AdminAuthConfig
	verifier *auth.LegacyVerifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewAdminAuthHandler(cfg AdminAuthConfig, verifier *auth.LegacyVerifier, logger *zap.Logger) *AdminAuthHandler {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminAuthHandler{cfg: cfg, verifier: verifier, logger: logger, now: time.Now}
}

// AdminAuthRouter registers the legacy auth routes. loginLimiter wraps the
// login endpoint only.
func AdminAuthRouter(r chi.Router, handler *AdminAuthHandler, loginLimiter func(http.Handler) http.Handler) {
	if loginLimiter != nil {
		r.With(loginLimiter).Post("/login", handler.Login)
	} else {
		r.Post("/login", handler.Login)
	}
	r.Post("/logout", handler.Logout)
	r.Get("/logout", handler.Logout)
	r.Get("/verify", handler.Verify)
}

type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type VerifyResponse struct {
	Valid bool   `json:"valid"`
	User  string `json:"user,omitempty"`
	Role  string `json:"role,omitempty"`
	Error string `json:"error,omitempty"`
}

// Login checks the admin password and sets the admin_token cookie.
func (h *AdminAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.passwordMatches(req.Password) {
		h.logger.Warn("admin login rejected", zap.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, expiresAt, err := auth.IssueLegacyToken([]byte(h.cfg.TokenSecret), h.cfg.TokenTTL, h.now())
	if err != nil {
		h.logger.Error("issue admin token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.LegacyCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(h.cfg.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

// Logout clears the admin_token cookie. It always succeeds.
func (h *AdminAuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w, auth.LegacyCookieName, h.cfg.SecureCookies)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Logged out successfully"})
}

// Verify reports whether the request already carries a valid admin token.
func (h *AdminAuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	session, err := h.verifier.Verify(r.Context(), r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, VerifyResponse{Valid: false, Error: "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: true, User: session.Subject, Role: string(session.Role)})
}

func (h *AdminAuthHandler) passwordMatches(password string) bool {
	if h.cfg.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(h.cfg.PasswordHash), []byte(password)) == nil
	}
	if h.cfg.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(h.cfg.Password), []byte(password)) == 1
}

type AdminDashboardResponse struct {
	User string `json:"user"`
	Role string `json:"role"`
}

// AdminDashboard answers for the legacy admin area once the routing guard
// has admitted the request.
func AdminDashboard(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, AdminDashboardResponse{User: session.Subject, Role: string(session.Role)})
}
