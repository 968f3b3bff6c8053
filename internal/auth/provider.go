package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/solodesign/apiserver/types"
)

// UserLookup resolves an access token against the identity provider.
type UserLookup interface {
	GetUser(ctx context.Context, accessToken string) (types.AuthUser, error)
}

// ProviderVerifier validates identity provider access tokens. With a JWT
// secret the token is checked locally; otherwise each request asks the
// provider who the token belongs to.
type ProviderVerifier struct {
	secret []byte
	lookup UserLookup
	now    func() time.Time
}

func NewProviderVerifier(jwtSecret string, lookup UserLookup) *ProviderVerifier {
	return &ProviderVerifier{
		secret: []byte(jwtSecret),
		lookup: lookup,
		now:    time.Now,
	}
}

type providerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (v *ProviderVerifier) Verify(ctx context.Context, r *http.Request) (types.Session, error) {
	token, err := credential(r, ProviderAccessCookie)
	if err != nil {
		return types.Session{}, err
	}
	return v.VerifyToken(ctx, token)
}

func (v *ProviderVerifier) VerifyToken(ctx context.Context, token string) (types.Session, error) {
	if len(v.secret) > 0 {
		return v.verifyLocal(token)
	}
	if v.lookup == nil {
		return types.Session{}, errors.New("provider verifier has neither secret nor user lookup")
	}
	user, err := v.lookup.GetUser(ctx, token)
	if err != nil {
		return types.Session{}, err
	}
	return types.Session{
		Subject:     user.ID,
		Email:       user.Email,
		Source:      types.SourceProvider,
		AccessToken: token,
	}, nil
}

func (v *ProviderVerifier) verifyLocal(token string) (types.Session, error) {
	var claims providerClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return types.Session{}, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return types.Session{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	default:
		return types.Session{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return types.Session{}, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}

	session := types.Session{
		Subject:     claims.Subject,
		Email:       claims.Email,
		Source:      types.SourceProvider,
		AccessToken: token,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return session, nil
}
