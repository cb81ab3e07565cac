// Package auth turns bearer credentials into user identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/dmserver/internal/apperr"
)

// Verifier authenticates an opaque token and returns the user it belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// Claims is the JWT payload. ID carries the user identifier.
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// JWT verifies and signs HS256 tokens with a shared secret.
type JWT struct {
	secret []byte
	now    func() time.Time
}

// NewJWT creates a JWT verifier. The secret must not be empty.
func NewJWT(secret string) (*JWT, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWT{secret: []byte(secret), now: time.Now}, nil
}

// Sign issues a token for userID valid for ttl. Used by dmctl and tests;
// production tokens come from the identity service sharing the secret.
func (j *JWT) Sign(userID string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := Claims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify validates signature and expiry and returns the id claim.
func (j *JWT) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.ErrUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(j.now))
	if err != nil {
		return "", &apperr.Error{Kind: apperr.KindUnauthenticated, Msg: "not authorized", Err: err}
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || c.ID == "" {
		return "", apperr.ErrUnauthenticated
	}
	return c.ID, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
