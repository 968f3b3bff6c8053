package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solodesign/apiserver/internal/auth"
	"github.com/solodesign/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	cookies := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c
	}
	return cookies
}

func TestRequestSessionEstablishAndSignOut(t *testing.T) {
	fake, client := newFakeProvider(t)
	verifier := auth.NewProviderVerifier("", client)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=good-code", nil)
	session := NewRequestSession(client, verifier, zap.NewNop(), rec, req, CookieOptions{})

	var events []types.SessionEventKind
	session.OnChange(func(e types.SessionEvent) { events = append(events, e.Kind) })

	established := session.Establish(Tokens{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    3600,
		User:         ProviderUser{ID: "user-1", Email: "ada@example.com"},
	})
	assert.Equal(t, "user-1", established.Subject)
	assert.Equal(t, "access-1", responseCookies(rec)[AccessCookie].Value)
	assert.Equal(t, "refresh-1", responseCookies(rec)[RefreshCookie].Value)

	current, err := session.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "ada@example.com", current.Email)

	require.NoError(t, session.SignOut(context.Background()))
	assert.Equal(t, 1, fake.signOuts)
	current, err = session.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)

	assert.Equal(t, []types.SessionEventKind{types.SessionSignedIn, types.SessionSignedOut}, events)
}

func TestRequestSessionSignOutClearsCookiesOnProviderFailure(t *testing.T) {
	fake, client := newFakeProvider(t)
	fake.failLogout = true

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "access-1"})
	session := NewRequestSession(client, auth.NewProviderVerifier("", client), zap.NewNop(), rec, req, CookieOptions{})

	err := session.SignOut(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)

	cookies := responseCookies(rec)
	for _, name := range []string{AccessCookie, RefreshCookie, VerifierCookie} {
		require.Contains(t, cookies, name)
		assert.Less(t, cookies[name].MaxAge, 0, name)
	}
}

func TestRequestSessionRefreshesRejectedAccessToken(t *testing.T) {
	_, client := newFakeProvider(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "stale"})
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "refresh-1"})
	session := NewRequestSession(client, auth.NewProviderVerifier("", client), zap.NewNop(), rec, req, CookieOptions{})

	var kinds []types.SessionEventKind
	session.OnChange(func(e types.SessionEvent) { kinds = append(kinds, e.Kind) })

	current, err := session.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "user-1", current.Subject)
	assert.Equal(t, []types.SessionEventKind{types.SessionTokenRefreshed}, kinds)
	assert.Equal(t, "refresh-2", responseCookies(rec)[RefreshCookie].Value)
}

func TestRequestSessionWithoutCookies(t *testing.T) {
	_, client := newFakeProvider(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	session := NewRequestSession(client, auth.NewProviderVerifier("", client), nil, httptest.NewRecorder(), req, CookieOptions{})

	current, err := session.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestVerifierCookieRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	session := NewRequestSession(nil, nil, nil, rec, httptest.NewRequest(http.MethodPost, "/", nil), CookieOptions{Secure: true})
	session.SetVerifier("v-123")
	cookie := responseCookies(rec)[VerifierCookie]
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	req.AddCookie(&http.Cookie{Name: VerifierCookie, Value: "v-123"})
	rec = httptest.NewRecorder()
	session = NewRequestSession(nil, nil, nil, rec, req, CookieOptions{})
	assert.Equal(t, "v-123", session.TakeVerifier())
	assert.Less(t, responseCookies(rec)[VerifierCookie].MaxAge, 0)
}
