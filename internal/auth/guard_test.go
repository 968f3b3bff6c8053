package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solodesign/apiserver/internal/observability"
	"github.com/solodesign/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGuard() *Guard {
	return NewGuard(zap.NewNop(), observability.NewMetrics(), false,
		Route{
			Prefix:       "/dashboard",
			Verifier:     NewProviderVerifier("jwt-secret", nil),
			LoginPath:    "/login",
			ClearCookies: []string{ProviderAccessCookie},
		},
		Route{
			Prefix:       "/admin/dashboard",
			Verifier:     NewLegacyVerifier("", false),
			LoginPath:    "/admin",
			ClearCookies: []string{LegacyCookieName},
		},
	)
}

func serveGuarded(g *Guard, r *http.Request) (*httptest.ResponseRecorder, bool, types.Session) {
	var reached bool
	var session types.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		session, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	g.Middleware(next).ServeHTTP(rec, r)
	return rec, reached, session
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestGuardAllowsValidLegacyToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: LegacyCookieName, Value: farFutureToken})

	rec, reached, session := serveGuarded(newTestGuard(), r)
	require.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.SourceLegacy, session.Source)
	assert.Nil(t, findCookie(rec, LegacyCookieName))
}

func TestGuardRedirectsExpiredLegacyToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/admin/dashboard/projects", nil)
	r.AddCookie(&http.Cookie{Name: LegacyCookieName, Value: expiredToken})

	rec, reached, _ := serveGuarded(newTestGuard(), r)
	require.False(t, reached)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	cleared := findCookie(rec, LegacyCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, "", cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestGuardRedirectsProviderPathsToLogin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/dashboard/client", nil)

	rec, reached, _ := serveGuarded(newTestGuard(), r)
	require.False(t, reached)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.NotNil(t, findCookie(rec, ProviderAccessCookie))
}

func TestGuardPassesUnprotectedPaths(t *testing.T) {
	for _, path := range []string{"/", "/admin", "/login", "/dashboards", "/api/projects"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		rec, reached, _ := serveGuarded(newTestGuard(), r)
		assert.True(t, reached, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

type stubRoles struct{ role types.Role }

func (s stubRoles) RoleFor(ctx context.Context, session types.Session) (types.Role, error) {
	return s.role, nil
}

func TestRequireAdmin(t *testing.T) {
	legacy := NewLegacyVerifier("", false)
	provider := NewProviderVerifier("jwt-secret", nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	providerToken := signProviderToken(t, "jwt-secret", "user-1", "ada@example.com", farFuture())

	tests := []struct {
		name   string
		roles  RoleResolver
		setup  func(r *http.Request)
		status int
	}{
		{"no credential", stubRoles{types.RoleAdmin}, func(r *http.Request) {}, http.StatusUnauthorized},
		{"legacy admin", stubRoles{types.RoleClient}, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: LegacyCookieName, Value: farFutureToken})
		}, http.StatusNoContent},
		{"legacy expired", stubRoles{types.RoleAdmin}, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: LegacyCookieName, Value: expiredToken})
		}, http.StatusUnauthorized},
		{"provider admin", stubRoles{types.RoleAdmin}, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: ProviderAccessCookie, Value: providerToken})
		}, http.StatusNoContent},
		{"provider client", stubRoles{types.RoleClient}, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: ProviderAccessCookie, Value: providerToken})
		}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/projects", nil)
			tt.setup(r)
			rec := httptest.NewRecorder()
			RequireAdmin(tt.roles, legacy, provider)(ok).ServeHTTP(rec, r)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
