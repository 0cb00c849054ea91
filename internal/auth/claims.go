// Package auth is the glue between the client and the managed auth provider:
// token claims, the provider's HTTP API, sealed session storage and the
// session event stream.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields the client reads from a provider access token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseClaims decodes an access token without verifying its signature. The
// backend verifies every token it receives; the client only needs the user
// id and expiry to drive its own state.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("access token has no subject")
	}
	return claims, nil
}

// Expiry returns the token expiry, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
