// Package identity talks to the hosted identity provider (Supabase GoTrue)
// that sends magic links and issues provider sessions.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/solodesign/apiserver/types"
)

// ErrProviderUnavailable is returned when the provider cannot be reached or
// answers with a server error.
var ErrProviderUnavailable = errors.New("identity provider unavailable")

// APIError is a 4xx answer from the provider.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity provider: %d %s", e.Status, e.Message)
}

// Tokens is the session material returned by a code exchange or refresh.
type Tokens struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         ProviderUser `json:"user"`
}

// Expiry returns the access token expiry reported by the provider.
func (t Tokens) Expiry(now time.Time) time.Time {
	if t.ExpiresAt > 0 {
		return time.Unix(t.ExpiresAt, 0).UTC()
	}
	if t.ExpiresIn > 0 {
		return now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	return time.Time{}
}

// ProviderUser is the provider's user record.
type ProviderUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Client is a thin REST client for the provider's auth endpoints.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

func NewClient(baseURL, anonKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: httpClient,
	}
}

// SendMagicLink asks the provider to email a sign-in link that lands on
// redirectTo. It returns the PKCE verifier the callback must present.
func (c *Client) SendMagicLink(ctx context.Context, email, redirectTo string) (string, error) {
	verifier, err := NewCodeVerifier()
	if err != nil {
		return "", err
	}

	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	body := map[string]any{
		"email":                 email,
		"create_user":           true,
		"code_challenge":        CodeChallenge(verifier),
		"code_challenge_method": "s256",
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/otp", query, "", body, nil); err != nil {
		return "", err
	}
	return verifier, nil
}

// ExchangeCode trades a callback code and its PKCE verifier for a session.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (Tokens, error) {
	query := url.Values{"grant_type": {"pkce"}}
	body := map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	}
	var tokens Tokens
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", query, "", body, &tokens); err != nil {
		return Tokens{}, err
	}
	return tokens, nil
}

// Refresh trades a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	query := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]string{"refresh_token": refreshToken}
	var tokens Tokens
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", query, "", body, &tokens); err != nil {
		return Tokens{}, err
	}
	return tokens, nil
}

// GetUser returns the user owning accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (types.AuthUser, error) {
	var reply ProviderUser
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, nil, &reply); err != nil {
		return types.AuthUser{}, err
	}
	return types.AuthUser{ID: reply.ID, Email: reply.Email}, nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, accessToken, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else if c.anonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	var reply struct {
		Message          string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	if err := json.Unmarshal(data, &reply); err != nil {
		return strings.TrimSpace(string(data))
	}
	for _, msg := range []string{reply.ErrorDescription, reply.Message, reply.Error} {
		if msg != "" {
			return msg
		}
	}
	return ""
}
