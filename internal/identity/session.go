package identity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/solodesign/apiserver/internal/auth"
	"github.com/solodesign/apiserver/types"
	"go.uber.org/zap"
)

const (
	AccessCookie   = auth.ProviderAccessCookie
	RefreshCookie  = "sb-refresh-token"
	VerifierCookie = "sb-code-verifier"

	refreshCookieMaxAge  = 60 * 60 * 24 * 30
	verifierCookieMaxAge = 60 * 60
)

// TokenVerifier validates an access token into a session.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (types.Session, error)
}

// CookieOptions controls the attributes of the provider cookies.
type CookieOptions struct {
	Secure bool
}

// RequestSession is the provider session carried by one HTTP exchange. It
// reads cookies from the request and writes cookie changes to the response.
type RequestSession struct {
	client   *Client
	verifier TokenVerifier
	logger   *zap.Logger
	w        http.ResponseWriter
	r        *http.Request
	opts     CookieOptions
	now      func() time.Time

	mu        sync.Mutex
	current   *types.Session
	cleared   bool
	listeners map[int]func(types.SessionEvent)
	nextID    int
}

func NewRequestSession(client *Client, verifier TokenVerifier, logger *zap.Logger, w http.ResponseWriter, r *http.Request, opts CookieOptions) *RequestSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestSession{
		client:    client,
		verifier:  verifier,
		logger:    logger,
		w:         w,
		r:         r,
		opts:      opts,
		now:       time.Now,
		listeners: make(map[int]func(types.SessionEvent)),
	}
}

// GetSession returns nil when the request carries no usable session. An
// expired access token is refreshed when a refresh cookie is present.
func (s *RequestSession) GetSession(ctx context.Context) (*types.Session, error) {
	s.mu.Lock()
	current, cleared := s.current, s.cleared
	s.mu.Unlock()
	if current != nil {
		return current, nil
	}
	if cleared {
		return nil, nil
	}

	if token := cookieValue(s.r, AccessCookie); token != "" {
		session, err := s.verifier.VerifyToken(ctx, token)
		if err == nil {
			return &session, nil
		}
		if !isCredentialError(err) {
			return nil, err
		}
	}

	refresh := cookieValue(s.r, RefreshCookie)
	if refresh == "" {
		return nil, nil
	}
	tokens, err := s.client.Refresh(ctx, refresh)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			s.logger.Warn("refresh token rejected", zap.Int("status", apiErr.Status))
			s.clearCookies()
			return nil, nil
		}
		return nil, err
	}
	session := s.store(tokens)
	s.emit(types.SessionEvent{Kind: types.SessionTokenRefreshed, Session: &session})
	return &session, nil
}

// Establish stores tokens from a code exchange and announces the sign-in.
func (s *RequestSession) Establish(tokens Tokens) types.Session {
	s.mu.Lock()
	s.cleared = false
	s.mu.Unlock()

	session := s.store(tokens)
	s.emit(types.SessionEvent{Kind: types.SessionSignedIn, Session: &session})
	return session
}

// SignOut revokes the session at the provider and clears the cookies even
// when that call fails.
func (s *RequestSession) SignOut(ctx context.Context) error {
	token := cookieValue(s.r, AccessCookie)
	s.mu.Lock()
	if s.current != nil {
		token = s.current.AccessToken
	}
	s.mu.Unlock()

	var err error
	if token != "" && s.client != nil {
		err = s.client.SignOut(ctx, token)
	}
	s.clearCookies()
	s.emit(types.SessionEvent{Kind: types.SessionSignedOut})
	return err
}

func (s *RequestSession) OnChange(fn func(types.SessionEvent)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SetVerifier stores the PKCE verifier between magic-link request and callback.
func (s *RequestSession) SetVerifier(verifier string) {
	s.setCookie(VerifierCookie, verifier, verifierCookieMaxAge)
}

// TakeVerifier returns the stored PKCE verifier and clears its cookie.
func (s *RequestSession) TakeVerifier() string {
	verifier := cookieValue(s.r, VerifierCookie)
	if verifier != "" {
		s.setCookie(VerifierCookie, "", -1)
	}
	return verifier
}

func (s *RequestSession) store(tokens Tokens) types.Session {
	expiresAt := tokens.Expiry(s.now())
	accessMaxAge := 0
	if !expiresAt.IsZero() {
		accessMaxAge = int(expiresAt.Sub(s.now()).Seconds())
	}
	s.setCookie(AccessCookie, tokens.AccessToken, accessMaxAge)
	if tokens.RefreshToken != "" {
		s.setCookie(RefreshCookie, tokens.RefreshToken, refreshCookieMaxAge)
	}
	session := types.Session{
		Subject:     tokens.User.ID,
		Email:       tokens.User.Email,
		ExpiresAt:   expiresAt,
		Source:      types.SourceProvider,
		AccessToken: tokens.AccessToken,
	}
	s.mu.Lock()
	s.current = &session
	s.mu.Unlock()
	return session
}

func (s *RequestSession) clearCookies() {
	s.mu.Lock()
	s.current = nil
	s.cleared = true
	s.mu.Unlock()
	for _, name := range []string{AccessCookie, RefreshCookie, VerifierCookie} {
		auth.ClearCookie(s.w, name, s.opts.Secure)
	}
}

func (s *RequestSession) setCookie(name, value string, maxAge int) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *RequestSession) emit(event types.SessionEvent) {
	s.mu.Lock()
	listeners := make([]func(types.SessionEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(event)
	}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func isCredentialError(err error) bool {
	var apiErr *APIError
	return errors.Is(err, auth.ErrTokenExpired) ||
		errors.Is(err, auth.ErrMalformedToken) ||
		errors.Is(err, auth.ErrBadSignature) ||
		errors.As(err, &apiErr)
}
