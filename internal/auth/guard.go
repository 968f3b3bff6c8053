package auth

import (
	"net/http"
	"sort"
	"strings"

	"github.com/solodesign/apiserver/internal/observability"
	"go.uber.org/zap"
)

// Route protects every path under Prefix with one verifier. Requests that
// fail verification are redirected to LoginPath and lose ClearCookies.
type Route struct {
	Prefix       string
	Verifier     SessionVerifier
	LoginPath    string
	ClearCookies []string
}

// Guard runs ahead of routing and checks protected path prefixes.
type Guard struct {
	routes  []Route
	logger  *zap.Logger
	metrics *observability.Metrics
	secure  bool
}

func NewGuard(logger *zap.Logger, metrics *observability.Metrics, secureCookies bool, routes ...Route) *Guard {
	sorted := append([]Route(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Guard{
		routes:  sorted,
		logger:  logger,
		metrics: metrics,
		secure:  secureCookies,
	}
}

func (g *Guard) match(path string) (Route, bool) {
	for _, route := range g.routes {
		if path == route.Prefix || strings.HasPrefix(path, strings.TrimSuffix(route.Prefix, "/")+"/") {
			return route, true
		}
	}
	return Route{}, false
}

// Middleware passes unprotected paths through untouched.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := g.match(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		session, err := route.Verifier.Verify(r.Context(), r)
		if err != nil {
			why := reason(err)
			g.metrics.GuardDenied(route.Prefix, why)
			g.logger.Warn("guard denied request",
				zap.String("path", r.URL.Path),
				zap.String("prefix", route.Prefix),
				zap.String("reason", why),
			)
			for _, name := range route.ClearCookies {
				ClearCookie(w, name, g.secure)
			}
			http.Redirect(w, r, route.LoginPath, http.StatusTemporaryRedirect)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// ClearCookie expires the named cookie on the client.
func ClearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
