package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/solodesign/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	farFutureToken = "a.eyJ1c2VyIjoiYWRtaW4iLCJyb2xlIjoiYWRtaW4iLCJleHAiOjk5OTk5OTk5OTl9.b"
	expiredToken   = "a.eyJ1c2VyIjoiYWRtaW4iLCJyb2xlIjoiYWRtaW4iLCJleHAiOjF9.b"
)

func fakeToken(payload string) string {
	return "a." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".b"
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLegacyVerifyToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewLegacyVerifier("", false)
	v.now = fixedClock(now)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"far future", farFutureToken, nil},
		{"no exp", fakeToken(`{"user":"admin","role":"admin"}`), nil},
		{"expired", expiredToken, ErrTokenExpired},
		{"exp equals now", fakeToken(`{"user":"admin","role":"admin","exp":1700000000}`), ErrTokenExpired},
		{"wrong role", fakeToken(`{"user":"admin","role":"editor","exp":9999999999}`), ErrNotAdmin},
		{"wrong user", fakeToken(`{"user":"bob","role":"admin"}`), ErrNotAdmin},
		{"two parts", "a.b", ErrMalformedToken},
		{"four parts", "a.b.c.d", ErrMalformedToken},
		{"not base64", "a.!!!.b", ErrMalformedToken},
		{"not json", "a." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".b", ErrMalformedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := v.VerifyToken(tt.token)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "admin", session.Subject)
			assert.Equal(t, types.SourceLegacy, session.Source)
			assert.Equal(t, types.RoleAdmin, session.Role)
		})
	}
}

func TestParseLegacyClaimsAcceptsStdAlphabet(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{"user":"admin","role":"admin","exp":42}`))
	claims, err := ParseLegacyClaims("x." + payload + ".y")
	require.NoError(t, err)
	require.NotNil(t, claims.Exp)
	assert.Equal(t, float64(42), *claims.Exp)
	assert.Equal(t, "admin", claims.User)
}

func TestLegacyVerifyPrefersCookie(t *testing.T) {
	v := NewLegacyVerifier("", false)

	r := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: LegacyCookieName, Value: expiredToken})
	r.Header.Set("Authorization", "Bearer "+farFutureToken)

	_, err := v.Verify(r.Context(), r)
	require.ErrorIs(t, err, ErrTokenExpired)

	r = httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	r.Header.Set("Authorization", "Bearer "+farFutureToken)
	_, err = v.Verify(r.Context(), r)
	require.NoError(t, err)

	r = httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	_, err = v.Verify(r.Context(), r)
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestLegacyStrictSignature(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()

	token, expiresAt, err := IssueLegacyToken(secret, time.Hour, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), expiresAt, time.Second)

	strict := NewLegacyVerifier(string(secret), true)
	session, err := strict.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, session.Role)

	_, err = strict.VerifyToken(farFutureToken)
	require.ErrorIs(t, err, ErrBadSignature)

	other := NewLegacyVerifier("another-secret", true)
	_, err = other.VerifyToken(token)
	require.ErrorIs(t, err, ErrBadSignature)

	// The claims-only check accepts the same unsigned token.
	lenient := NewLegacyVerifier(string(secret), false)
	_, err = lenient.VerifyToken(farFutureToken)
	require.NoError(t, err)
}

func TestIssueLegacyTokenRequiresSecret(t *testing.T) {
	_, _, err := IssueLegacyToken(nil, time.Hour, time.Now())
	require.Error(t, err)
}
