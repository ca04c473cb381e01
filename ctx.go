package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}
var roleCtxKey = &contextKey{"role"}

type contextKey struct {
	name string
}

// WithContext sets the AuthUser in the given context
func WithContext(r context.Context, user *AuthUser) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*AuthUser, bool) {
	raw, ok := ctx.Value(userCtxKey).(*AuthUser)
	return raw, ok
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// WithRoleContext sets the resolved RoleData in the given context. Role
// resolution happens once per request; handlers read it from here.
func WithRoleContext(r context.Context, role *RoleData) context.Context {
	return context.WithValue(r, roleCtxKey, role)
}

// GetRole extracts the resolved RoleData from the standard context
func GetRole(ctx context.Context) (*RoleData, bool) {
	raw, ok := ctx.Value(roleCtxKey).(*RoleData)
	return raw, ok
}

// GetRouterClaims extracts the AuthClaims from the router context
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user" // Default key used by JWT middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// HasRole is a convenience check against the claims in the standard context.
func HasRole(ctx context.Context, role Role) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}
	return claims.HasRole(role)
}

// IsAtLeast reports whether the context claims carry the given role or a
// higher-precedence one.
func IsAtLeast(ctx context.Context, role Role) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}
	return claims.IsAtLeast(role)
}

// HasRoleFromRouter is the router-context variant of HasRole.
func HasRoleFromRouter(ctx router.Context, role Role) bool {
	claims, ok := GetRouterClaims(ctx, "")
	if !ok {
		return false
	}
	return claims.HasRole(role)
}
