// Package auth verifies the two session mechanisms the site accepts and
// gates protected routes on them.
//
// Provider sessions come from the identity provider's magic-link flow and
// carry an access token signed by the provider. Legacy sessions come from the
// password-based admin login and carry a three-part token asserting
// {user: "admin", role: "admin", exp}. Both are exposed through
// SessionVerifier so a route table can pick one by path prefix.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/solodesign/apiserver/types"
)

const (
	// LegacyCookieName holds the legacy admin token.
	LegacyCookieName = "admin_token"

	// ProviderAccessCookie holds the identity provider access token.
	ProviderAccessCookie = "sb-access-token"
)

var (
	ErrNoCredential   = errors.New("no credential")
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")
	ErrNotAdmin       = errors.New("token does not assert admin")
	ErrBadSignature   = errors.New("invalid token signature")
)

// SessionVerifier resolves the session carried by a request.
type SessionVerifier interface {
	Verify(ctx context.Context, r *http.Request) (types.Session, error)
}

type contextKey string

const sessionContextKey contextKey = "session"

// WithSession stores a verified session on the context.
func WithSession(ctx context.Context, session types.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext returns the session stored by the guard or RequireAdmin.
func SessionFromContext(ctx context.Context) (types.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(types.Session)
	return session, ok
}

// credential reads the token from the named cookie, falling back to an
// Authorization: Bearer header. The cookie wins when both are present.
func credential(r *http.Request, cookieName string) (string, error) {
	if cookie, err := r.Cookie(cookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value, nil
		}
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrNoCredential
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrNoCredential
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// reason maps verification errors to a short label for logs and metrics.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrNoCredential):
		return "missing"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrNotAdmin):
		return "not_admin"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	default:
		return "error"
	}
}
