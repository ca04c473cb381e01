package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims is the structured view of a verified token.
type AuthClaims interface {
	Subject() string
	UserID() string
	Email() string
	Role() Role
	HasRole(role Role) bool
	// IsAtLeast reports whether the claim's role holds the given rank or a
	// higher one under the fixed tenant precedence.
	IsAtLeast(minRole Role) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID       string         `json:"uid,omitempty"`
	UserEmail string         `json:"email,omitempty"`
	UserRole  string         `json:"role,omitempty"`
	Scopes    []string       `json:"scopes,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the auth identity id, falling back to the subject
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Email returns the email claim
func (c *JWTClaims) Email() string {
	return c.UserEmail
}

// Role returns the resolved tenant role carried by the token. Tokens minted
// before role resolution carry no role and read as student.
func (c *JWTClaims) Role() Role {
	if role, ok := ParseRole(c.UserRole); ok {
		return role
	}
	return RoleStudent
}

// HasRole checks the claim against one specific role
func (c *JWTClaims) HasRole(role Role) bool {
	return c.Role() == role
}

// IsAtLeast checks the claim's role rank against a minimum
func (c *JWTClaims) IsAtLeast(minRole Role) bool {
	return RolePrecedence(c.Role()) <= RolePrecedence(minRole)
}

// HasScope reports whether the token carries a given scope.
func (c *JWTClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ClaimsMetadata exposes metadata extensions for optional context enrichment.
func (c *JWTClaims) ClaimsMetadata() map[string]any {
	return c.Metadata
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
