package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated principal. It is owned
// by the credential store; this package never mutates it.
type Identity interface {
	ID() string
	UserUUID() (uuid.UUID, error)
	Email() string
}

// RoleResolution resolves the effective tenant role for an identity. The
// resolve call never fails from the caller's perspective: internal errors
// degrade to the student default.
type RoleResolution interface {
	DetermineUserRole(ctx context.Context, identity Identity) RoleData
	RefreshUserRole(ctx context.Context, identity Identity) RoleData
	Invalidate(identityID string)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetTokenExpiration() int
	GetMaxLoginAttempts() int
	GetLockoutDuration() time.Duration
	GetThrottleResetWindow() time.Duration
	GetRoleCacheTTL() time.Duration
	GetSubscriptionCheckInterval() time.Duration
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetExtendedTokenDuration() int
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

// SimpleConfig is a plain-struct Config for wiring without a config library.
type SimpleConfig struct {
	SigningKey                string
	Issuer                    string
	Audience                  []string
	TokenExpiration           int
	MaxLoginAttempts          int
	LockoutDuration           time.Duration
	ThrottleResetWindow       time.Duration
	RoleCacheTTL              time.Duration
	SubscriptionCheckInterval time.Duration
	ContextKey                string
	TokenLookup               string
	AuthScheme                string
	ExtendedTokenDuration     int
	RejectedRouteKey          string
	RejectedRouteDefault      string
}

func (c SimpleConfig) GetSigningKey() string { return c.SigningKey }
func (c SimpleConfig) GetIssuer() string     { return c.Issuer }
func (c SimpleConfig) GetAudience() []string { return c.Audience }

func (c SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return 24
	}
	return c.TokenExpiration
}

func (c SimpleConfig) GetMaxLoginAttempts() int {
	if c.MaxLoginAttempts <= 0 {
		return DefaultMaxLoginAttempts
	}
	return c.MaxLoginAttempts
}

func (c SimpleConfig) GetLockoutDuration() time.Duration {
	if c.LockoutDuration <= 0 {
		return DefaultLockoutDuration
	}
	return c.LockoutDuration
}

func (c SimpleConfig) GetThrottleResetWindow() time.Duration {
	if c.ThrottleResetWindow <= 0 {
		return DefaultThrottleResetWindow
	}
	return c.ThrottleResetWindow
}

func (c SimpleConfig) GetRoleCacheTTL() time.Duration {
	if c.RoleCacheTTL <= 0 {
		return DefaultRoleCacheTTL
	}
	return c.RoleCacheTTL
}

func (c SimpleConfig) GetSubscriptionCheckInterval() time.Duration {
	if c.SubscriptionCheckInterval <= 0 {
		return DefaultSubscriptionCheckInterval
	}
	return c.SubscriptionCheckInterval
}

func (c SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "user"
	}
	return c.ContextKey
}

func (c SimpleConfig) GetTokenLookup() string {
	if c.TokenLookup == "" {
		return "header:Authorization,cookie:" + c.GetContextKey()
	}
	return c.TokenLookup
}

func (c SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c SimpleConfig) GetExtendedTokenDuration() int {
	return c.ExtendedTokenDuration
}

func (c SimpleConfig) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return "rejected_route"
	}
	return c.RejectedRouteKey
}

func (c SimpleConfig) GetRejectedRouteDefault() string {
	if c.RejectedRouteDefault == "" {
		return "/"
	}
	return c.RejectedRouteDefault
}

var _ Config = SimpleConfig{}

// DefaultLogger is the stdout logger used when a component is not given one.
var DefaultLogger Logger = defLogger{}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
