// Package tokens decodes the bearer tokens issued by the voting backend.
//
// The client never holds the signing key, so tokens are decoded without
// verification. Decoding is strict: a token missing its identity, role or
// expiry is rejected rather than partially decoded.
package tokens

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/models"
)

// Claims is the identity and role information carried by a session token
type Claims struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      models.Role `json:"role"`
	IssuedAt  time.Time   `json:"issuedAt"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Expired reports whether the token is expired at now. A token expiring
// exactly at now is expired.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// DisplayName returns the name claim, falling back to the email.
func (c Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

type tokenClaims struct {
	UserID models.FlexString `json:"id"`
	Email  string            `json:"email"`
	Name   string            `json:"name"`
	Role   string            `json:"role"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser()

// Decode maps a bearer token to its claims without verifying the signature.
func Decode(token string) (Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Claims{}, errors.Decode("empty session token", nil)
	}

	var raw tokenClaims
	if _, _, err := parser.ParseUnverified(token, &raw); err != nil {
		return Claims{}, errors.Decode("malformed session token", err)
	}

	id := strings.TrimSpace(raw.UserID.String())
	if id == "" {
		return Claims{}, errors.Decode("session token has no id claim", nil)
	}
	email := strings.TrimSpace(raw.Email)
	if email == "" {
		return Claims{}, errors.Decode("session token has no email claim", nil)
	}
	role, err := models.ParseRole(raw.Role)
	if err != nil {
		return Claims{}, errors.Decode("session token has an invalid role claim", err)
	}
	if raw.ExpiresAt == nil {
		return Claims{}, errors.Decode("session token has no exp claim", nil)
	}

	claims := Claims{
		ID:        id,
		Email:     email,
		Name:      raw.Name,
		Role:      role,
		ExpiresAt: raw.ExpiresAt.Time,
	}
	if raw.IssuedAt != nil {
		claims.IssuedAt = raw.IssuedAt.Time
	}
	return claims, nil
}
