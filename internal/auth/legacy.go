package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/solodesign/apiserver/types"
)

const legacyAdmin = "admin"

// LegacyVerifier performs the claims-shape check on legacy admin tokens:
// three dot-separated parts, a base64 JSON payload, an unexpired exp and
// literal "admin" user and role. The signature segment is ignored unless
// strict mode is on, in which case it must be a valid HS256 signature.
type LegacyVerifier struct {
	secret []byte
	strict bool
	now    func() time.Time
}

func NewLegacyVerifier(secret string, strict bool) *LegacyVerifier {
	return &LegacyVerifier{
		secret: []byte(secret),
		strict: strict,
		now:    time.Now,
	}
}

// Verify reads the token from the admin_token cookie or a Bearer header.
func (v *LegacyVerifier) Verify(ctx context.Context, r *http.Request) (types.Session, error) {
	token, err := credential(r, LegacyCookieName)
	if err != nil {
		return types.Session{}, err
	}
	return v.VerifyToken(token)
}

func (v *LegacyVerifier) VerifyToken(token string) (types.Session, error) {
	claims, err := ParseLegacyClaims(token)
	if err != nil {
		return types.Session{}, err
	}

	now := v.now()
	if claims.Exp != nil && !(*claims.Exp > float64(now.Unix())) {
		return types.Session{}, ErrTokenExpired
	}
	if claims.Role != legacyAdmin || claims.User != legacyAdmin {
		return types.Session{}, ErrNotAdmin
	}
	if v.strict {
		if err := v.verifySignature(token); err != nil {
			return types.Session{}, err
		}
	}

	session := types.Session{
		Subject:     claims.User,
		Source:      types.SourceLegacy,
		Role:        types.RoleAdmin,
		AccessToken: token,
	}
	if claims.Exp != nil {
		sec, frac := math.Modf(*claims.Exp)
		session.ExpiresAt = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return session, nil
}

func (v *LegacyVerifier) verifySignature(token string) error {
	if len(v.secret) == 0 {
		return ErrBadSignature
	}
	_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// ParseLegacyClaims splits the token and decodes its middle segment. It does
// not look at the signature.
func ParseLegacyClaims(token string) (types.LegacyClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return types.LegacyClaims{}, fmt.Errorf("%w: want 3 parts, got %d", ErrMalformedToken, len(parts))
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return types.LegacyClaims{}, fmt.Errorf("%w: payload is not base64", ErrMalformedToken)
	}

	var claims types.LegacyClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return types.LegacyClaims{}, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedToken)
	}
	return claims, nil
}

// decodeSegment accepts both base64 alphabets, padded or not.
func decodeSegment(seg string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(seg)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

type legacyTokenClaims struct {
	User string `json:"user"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueLegacyToken signs an HS256 admin token valid for ttl.
func IssueLegacyToken(secret []byte, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, errors.New("legacy token secret is empty")
	}
	expiresAt := now.Add(ttl)
	claims := legacyTokenClaims{
		User: legacyAdmin,
		Role: legacyAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}
