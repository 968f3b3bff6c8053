package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/solodesign/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signProviderToken(t *testing.T, secret string, sub, email string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"aud":   "authenticated",
		"exp":   exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

type stubLookup struct {
	user  types.AuthUser
	err   error
	calls int
}

func (s *stubLookup) GetUser(ctx context.Context, accessToken string) (types.AuthUser, error) {
	s.calls++
	return s.user, s.err
}

func TestProviderVerifierLocal(t *testing.T) {
	v := NewProviderVerifier("jwt-secret", nil)

	token := signProviderToken(t, "jwt-secret", "user-1", "ada@example.com", time.Now().Add(time.Hour))
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: ProviderAccessCookie, Value: token})

	session, err := v.Verify(r.Context(), r)
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.Subject)
	assert.Equal(t, "ada@example.com", session.Email)
	assert.Equal(t, types.SourceProvider, session.Source)
	assert.Empty(t, session.Role)

	expired := signProviderToken(t, "jwt-secret", "user-1", "ada@example.com", time.Now().Add(-time.Hour))
	_, err = v.VerifyToken(context.Background(), expired)
	require.ErrorIs(t, err, ErrTokenExpired)

	forged := signProviderToken(t, "other-secret", "user-1", "ada@example.com", time.Now().Add(time.Hour))
	_, err = v.VerifyToken(context.Background(), forged)
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = v.VerifyToken(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestProviderVerifierRemote(t *testing.T) {
	lookup := &stubLookup{user: types.AuthUser{ID: "user-2", Email: "grace@example.com"}}
	v := NewProviderVerifier("", lookup)

	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	r.Header.Set("Authorization", "Bearer opaque")

	session, err := v.Verify(r.Context(), r)
	require.NoError(t, err)
	assert.Equal(t, "user-2", session.Subject)
	assert.Equal(t, 1, lookup.calls)

	lookup.err = errors.New("provider down")
	_, err = v.Verify(r.Context(), r)
	require.Error(t, err)
}

func farFuture() time.Time {
	return time.Now().Add(24 * time.Hour)
}
