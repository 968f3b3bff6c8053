package types

import "time"

// SessionSource names the mechanism that produced a Session.
type SessionSource string

const (
	SourceProvider SessionSource = "provider"
	SourceLegacy   SessionSource = "legacy"
)

// Session is the read-only mirror of a credential issued by the session
// store or by the legacy admin login.
type Session struct {
	Subject   string        `json:"subject"`
	Email     string        `json:"email,omitempty"`
	ExpiresAt time.Time     `json:"expires_at,omitempty"`
	Source    SessionSource `json:"source"`

	// Role is only asserted by legacy admin tokens; provider sessions take
	// their role from the Profile.
	Role Role `json:"role,omitempty"`

	AccessToken string `json:"-"`
}

// Expired reports whether the session carries an expiry that has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(now)
}

// SessionEventKind enumerates session store change notifications.
type SessionEventKind string

const (
	SessionSignedIn       SessionEventKind = "SIGNED_IN"
	SessionSignedOut      SessionEventKind = "SIGNED_OUT"
	SessionTokenRefreshed SessionEventKind = "TOKEN_REFRESHED"
)

// SessionEvent is delivered to session-store subscribers on every change.
type SessionEvent struct {
	Kind    SessionEventKind
	Session *Session
}

// LegacyClaims is the payload asserted by a legacy admin token.
type LegacyClaims struct {
	User string   `json:"user"`
	Role string   `json:"role"`
	Exp  *float64 `json:"exp,omitempty"`
}
