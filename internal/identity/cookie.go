package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSessionInvalid means a cookie that was present could not be decoded, or
// decodes to an identity that no longer resolves. It is never auto-healed
// into a fresh anonymous identity; the caller tells the client to restart.
var ErrSessionInvalid = errors.New("session invalid")

// CookieUpdate is the resolver's instruction to rewrite the session cookie.
// Nil means leave the cookie untouched. The HTTP layer applies it; the
// resolver itself never touches the response.
type CookieUpdate struct {
	Value  string
	MaxAge time.Duration
}

type cookieClaims struct {
	AnonToken string `json:"anon,omitempty"`
	jwt.RegisteredClaims
}

// EncodeCookie signs a session cookie carrying the user id and, for walk-in
// visitors, the anonymous token.
func EncodeCookie(secret, userID, anonToken string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := cookieClaims{
		AnonToken: anonToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// DecodeCookie parses a session cookie. Any parse or signature failure of a
// present cookie maps to ErrSessionInvalid.
func DecodeCookie(secret, raw string) (userID, anonToken string, err error) {
	var claims cookieClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, okk := t.Method.(*jwt.SigningMethodHMAC); !okk {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return "", "", fmt.Errorf("%w: cookie: %v", ErrSessionInvalid, err)
	}
	if claims.Subject == "" {
		return "", "", fmt.Errorf("%w: cookie has no subject", ErrSessionInvalid)
	}
	return claims.Subject, claims.AnonToken, nil
}
