package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced alongside rich errors so HTTP and UI layers can key
// translations and behavior without string matching.
const (
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeAccountLocked       = "ACCOUNT_LOCKED"
	TextCodeAccessDenied        = "ACCESS_DENIED"
	TextCodeSubscriptionBlocked = "SUBSCRIPTION_BLOCKED"
	TextCodeSessionNotFound     = "SESSION_NOT_FOUND"
	TextCodeSessionDecodeError  = "SESSION_DECODE_ERROR"
	TextCodeClaimsMappingError  = "CLAIMS_MAPPING_ERROR"
	TextCodeDataParseError      = "DATA_PARSE_ERROR"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "TOKEN_MALFORMED"
	TextCodeActivationFailed    = "ACTIVATION_TOKEN_INVALID"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodeWeakPassword        = "WEAK_PASSWORD"
	TextCodeConnectionError     = "CONNECTION_ERROR"
)

// ErrInvalidCredentials is the uniform bad-credentials error. The message is
// deliberately identical for wrong password, unknown user, and unconfirmed
// email to avoid account enumeration.
var ErrInvalidCredentials = goerrors.New("email ou senha incorretos", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountLocked is returned while a throttle lockout is active
var ErrAccountLocked = goerrors.New("conta temporariamente bloqueada", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccessDenied marks an authenticated identity hitting the wrong tenant
// path (e.g. a non-producer on the producer sign-in). Distinct from bad
// credentials: the server session is torn down and the attempt is not retried.
var ErrAccessDenied = goerrors.New("acesso restrito a produtores ativos", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccessDenied).
	WithCode(goerrors.CodeForbidden)

// ErrSubscriptionBlocked gates company-rooted access on billing state
var ErrSubscriptionBlocked = goerrors.New("assinatura expirada ou cancelada", goerrors.CategoryAuth).
	WithTextCode(TextCodeSubscriptionBlocked).
	WithCode(goerrors.CodeForbidden)

// ErrIdentityNotFound is returned for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUnableToFindSession is returned when no session cookie/token is present
var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToDecodeSession covers undecodable session tokens
var ErrUnableToDecodeSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToMapClaims covers claims that cannot be extracted from a token
var ErrUnableToMapClaims = goerrors.New("unable to map claims", goerrors.CategoryAuth).
	WithTextCode(TextCodeClaimsMappingError).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToParseData is a generic claims payload parse error
var ErrUnableToParseData = goerrors.New("unable to parse data", goerrors.CategoryInternal).
	WithTextCode(TextCodeDataParseError)

// ErrTokenExpired is returned for expired JWTs
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail structural validation
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrActivationTokenInvalid aggregates the failures of every activation
// token resolution strategy.
var ErrActivationTokenInvalid = goerrors.New("link de ativação inválido ou expirado", goerrors.CategoryAuth).
	WithTextCode(TextCodeActivationFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrImmutableClaimMutation flags a claims decorator touching identity claims
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
	WithTextCode("IMMUTABLE_CLAIM_MUTATION")

// ErrConnection is the catch-all infrastructure failure surfaced to users
var ErrConnection = goerrors.New("erro de conexão, tente novamente", goerrors.CategoryOperation).
	WithTextCode(TextCodeConnectionError)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for malformed token errors
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsInvalidCredentialsError detects the backend's bad-credentials responses
func IsInvalidCredentialsError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid login credentials") ||
		strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "email ou senha incorretos")
}

// IsNetworkError detects transport-level failures (fetch/CORS/timeouts) that
// the orchestrators treat as infrastructure errors rather than auth failures.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, probe := range []string{
		"failed to fetch",
		"networkerror",
		"network error",
		"connection refused",
		"connection reset",
		"no such host",
		"cors",
		"timeout",
		"deadline exceeded",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}

// IsRefreshTokenError detects the refresh-token failures the safety net
// converts into a forced local sign-out.
func IsRefreshTokenError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "refresh_token") ||
		strings.Contains(msg, "refresh token") ||
		strings.Contains(msg, "invalid refresh")
}
