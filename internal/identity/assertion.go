package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Assertion is what we consume from the identity provider: a stable subject
// id and, when the provider shares it, an email. The OAuth dance that
// produced it is someone else's problem.
type Assertion struct {
	Subject string
	Email   string
}

type AssertionVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Assertion, error)
}

// JWTAssertionVerifier checks tokens minted by the web front end's auth layer
// after its OAuth flow completes (HS256, shared secret, fixed issuer and
// audience).
type JWTAssertionVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewJWTAssertionVerifier(secret, issuer, audience string) *JWTAssertionVerifier {
	return &JWTAssertionVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

type assertionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (v *JWTAssertionVerifier) Verify(ctx context.Context, rawToken string) (*Assertion, error) {
	_ = ctx

	var claims assertionClaims
	tok, err := jwt.ParseWithClaims(rawToken, &claims,
		func(t *jwt.Token) (any, error) {
			if _, okk := t.Method.(*jwt.SigningMethodHMAC); !okk {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("verify assertion: %w", err)
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, errors.New("verify assertion: missing subject")
	}
	return &Assertion{Subject: claims.Subject, Email: claims.Email}, nil
}
