package gotrue

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/eadcore/go-auth"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidatorConfig configures JWKS-backed validation of backend-issued
// tokens.
type TokenValidatorConfig struct {
	// JWKSURL is the key set endpoint. Defaults to "{BaseURL}/.well-known/jwks.json".
	JWKSURL string

	// Issuer, when set, is enforced on every token.
	Issuer string

	// Audience, when set, is enforced on every token.
	Audience []string

	// RefreshInterval is how often the key set is refreshed in the
	// background. Default: 1 hour.
	RefreshInterval time.Duration

	// Logger receives key refresh diagnostics (optional).
	Logger auth.Logger
}

// TokenValidator validates backend-issued JWTs against the service JWKS.
// It satisfies auth.TokenValidator so it can ride a MultiTokenValidator
// next to the local HS256 service.
type TokenValidator struct {
	jwks    *keyfunc.JWKS
	options []jwt.ParserOption
}

var _ auth.TokenValidator = (*TokenValidator)(nil)

// NewTokenValidator fetches the key set and returns a validator. The key set
// refreshes in the background until Close is called.
func NewTokenValidator(baseURL string, cfg TokenValidatorConfig) (*TokenValidator, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		base := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
		if base == "" {
			return nil, fmt.Errorf("gotrue: JWKS URL or base URL is required")
		}
		jwksURL = base + "/.well-known/jwks.json"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = auth.DefaultLogger
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   refreshInterval,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn("JWKS background refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gotrue: failed to fetch JWKS: %w", err)
	}

	options := make([]jwt.ParserOption, 0, 2)
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if len(cfg.Audience) > 0 {
		options = append(options, jwt.WithAudience(cfg.Audience...))
	}

	return &TokenValidator{
		jwks:    jwks,
		options: options,
	}, nil
}

// Validate implements auth.TokenValidator.
func (v *TokenValidator) Validate(tokenString string) (auth.AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &auth.JWTClaims{}, v.jwks.Keyfunc, v.options...)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	claims, ok := token.Claims.(*auth.JWTClaims)
	if !ok || !token.Valid {
		return nil, auth.ErrTokenMalformed
	}

	return claims, nil
}

// Close stops the background key refresh.
func (v *TokenValidator) Close() {
	v.jwks.EndBackground()
}

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	clone := auth.ErrTokenMalformed.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		clone = auth.ErrTokenExpired.Clone()
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"provider": "gotrue",
		"cause":    err.Error(),
	})
}
