package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/solodesign/apiserver/internal/auth"
	"github.com/solodesign/apiserver/internal/handlers"
	"github.com/solodesign/apiserver/internal/identity"
	"github.com/solodesign/apiserver/internal/logging"
	"github.com/solodesign/apiserver/internal/roles"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

const (
	adminDashboardPrefix = "/admin/dashboard"
	adminLoginPath       = "/admin"
)

// NewRouter assembles middleware, the routing guard and every endpoint.
func NewRouter(d Dependencies) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := d.Config
	production := cfg.IsProduction()

	legacy := d.legacyVerifier()
	provider := d.providerVerifier()
	guard := auth.NewGuard(logger, d.Metrics, production,
		auth.Route{
			Prefix:       adminDashboardPrefix,
			Verifier:     legacy,
			LoginPath:    adminLoginPath,
			ClearCookies: []string{auth.LegacyCookieName},
		},
		auth.Route{
			Prefix:       roles.DashboardPrefix,
			Verifier:     provider,
			LoginPath:    roles.LoginPath,
			ClearCookies: []string{identity.AccessCookie, identity.RefreshCookie},
		},
	)
	requireAdmin := auth.RequireAdmin(d.Profiles, d.adminAPIVerifier(), provider)

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !production,
	})

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		d.Metrics.Middleware,
		secureMiddleware.Handler,
		guard.Middleware,
	)

	cookies := identity.CookieOptions{Secure: production}
	adminAuth := handlers.NewAdminAuthHandler(handlers.AdminAuthConfig{
		Password:      cfg.Admin.Password,
		PasswordHash:  cfg.Admin.PasswordHash,
		TokenSecret:   cfg.Admin.TokenSecret,
		TokenTTL:      cfg.Admin.TokenTTL,
		SecureCookies: production,
	}, legacy, logger)
	sessions := handlers.NewSessionHandler(d.Identity, provider, d.Profiles, cfg.Supabase.SiteURL, cookies, logger)
	mediaHandler := handlers.NewMediaHandler(d.Media, logger)
	projectHandler := handlers.NewProjectHandler(d.Projects, mediaHandler, logger)
	profileHandler := handlers.NewProfileHandler(d.Profiles, logger)
	systemHandler := handlers.NewSystemHandler(cfg.Version, cfg.Environment, d.Checker)
	eventsHandler := handlers.NewEventsHandler(d.Broker, logger)

	// Long-lived streams stay outside the request timeout.
	router.Get("/api/events", eventsHandler.Stream)
	router.Handle("/metrics", d.Metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Get("/api/health", systemHandler.Health)
		r.With(requireAdmin).Get("/api/system/status", systemHandler.Status)

		r.Route("/api/auth", func(r chi.Router) {
			handlers.AdminAuthRouter(r, adminAuth, rateLimiter(cfg.Limits.LoginPerMinute))
			handlers.SessionRouter(r, sessions, rateLimiter(cfg.Limits.MagicLinkPerMinute))
		})
		r.Get("/auth/callback", sessions.Callback)

		r.Route(roles.DashboardPrefix, func(r chi.Router) {
			handlers.DashboardRouter(r, sessions)
		})
		r.Get(adminDashboardPrefix, handlers.AdminDashboard)
		r.Get(adminDashboardPrefix+"/*", handlers.AdminDashboard)

		r.Route("/api/upload", func(r chi.Router) {
			handlers.MediaRouter(r, mediaHandler, requireAdmin)
		})
		r.Get("/api/media", mediaHandler.List)
		r.Get("/uploads/{filename}", mediaHandler.Serve)
		r.Head("/uploads/{filename}", mediaHandler.Serve)

		r.Route("/api/projects", func(r chi.Router) {
			handlers.ProjectRouter(r, projectHandler, requireAdmin)
		})
		r.Route("/api/profiles", func(r chi.Router) {
			handlers.ProfileRouter(r, profileHandler, requireAdmin)
		})
	})

	return router
}

// rateLimiter limits by client IP; zero disables it.
func rateLimiter(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return nil
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests"}` + "\n"))
		}),
	)
}
