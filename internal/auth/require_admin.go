package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/solodesign/apiserver/types"
)

// RoleResolver maps a provider session to the role stored on its profile.
type RoleResolver interface {
	RoleFor(ctx context.Context, session types.Session) (types.Role, error)
}

// RequireAdmin admits API requests carrying an admin session from any of the
// given verifiers, tried in order. Legacy sessions are admin by construction;
// provider sessions are admin only when their profile says so.
func RequireAdmin(roles RoleResolver, verifiers ...SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := firstSession(r, verifiers)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if session.Source == types.SourceProvider {
				role := types.RoleClient
				if roles != nil {
					if resolved, err := roles.RoleFor(r.Context(), session); err == nil {
						role = resolved
					}
				}
				if role != types.RoleAdmin {
					writeAuthError(w, http.StatusForbidden, "forbidden")
					return
				}
				session.Role = role
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

func firstSession(r *http.Request, verifiers []SessionVerifier) (types.Session, error) {
	err := ErrNoCredential
	for _, verifier := range verifiers {
		session, verr := verifier.Verify(r.Context(), r)
		if verr == nil {
			return session, nil
		}
		if !errors.Is(verr, ErrNoCredential) {
			err = verr
		}
	}
	return types.Session{}, err
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
