package accounts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the JWT payload for a session token. The token is the
// complete session: no server-side state backs it, so everything the Guard
// needs to resolve a principal travels in the claims.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	UserRole string `json:"role,omitempty"`
}

// UserID returns the subject claim.
func (c *SessionClaims) UserID() string {
	return c.RegisteredClaims.Subject
}

// Role returns the role claim.
func (c *SessionClaims) Role() string {
	return c.UserRole
}

// IsAdmin reports whether the claims carry the admin role. This only reflects
// the role at issue time; privileged paths re-check the live record.
func (c *SessionClaims) IsAdmin() bool {
	return c.UserRole == RoleAdmin
}

// Expires returns the expiration time, or the zero time when absent.
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued-at time, or the zero time when absent.
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
