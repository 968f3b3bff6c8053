package types

import (
	"strings"
	"time"
)

// Role is the coarse authorization label attached to a Profile.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Valid reports whether the role is one of the known labels.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleClient
}

// Profile is the application-owned extension record for an identity issued
// by the external session store.
type Profile struct {
	// ID is the unique identifier of the profile row.
	ID string `json:"id" db:"id"`

	// UserID references the session subject this profile extends.
	UserID string `json:"user_id" db:"user_id"`

	// FullName is the display name; nil when the user never set one.
	FullName *string `json:"full_name" db:"full_name"`

	// Role drives dashboard routing ("admin" or "client").
	Role Role `json:"role" db:"role"`

	// CreatedAt is the timestamp when the profile was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent profile update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultProfile synthesizes the in-memory profile used when no row exists
// for an authenticated subject. It is never persisted.
func DefaultProfile(userID, email string, now time.Time) Profile {
	var name *string
	if local, _, _ := strings.Cut(email, "@"); local != "" {
		name = &local
	}
	return Profile{
		ID:        userID,
		UserID:    userID,
		FullName:  name,
		Role:      RoleClient,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AuthUser is the view-model derived each time the session changes.
type AuthUser struct {
	ID      string   `json:"id"`
	Email   string   `json:"email"`
	Profile *Profile `json:"profile"`
}

// Role returns the profile role, or the empty role when no profile is attached.
func (u *AuthUser) Role() Role {
	if u == nil || u.Profile == nil {
		return ""
	}
	return u.Profile.Role
}
