package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService() *TokenServiceImpl {
	return NewTokenService([]byte("test-signing-key"), 24, "eadcore", jwt.ClaimStrings{"eadcore-app"}, nil)
}

func TestTokenServiceGenerateAndValidate(t *testing.T) {
	svc := newTestTokenService()
	identity := testIdentity{id: "user-123", email: "user@example.com"}

	tokenString, err := svc.Generate(context.Background(), identity, RoleCompany)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := svc.Validate(tokenString)
	require.NoError(t, err)

	assert.Equal(t, "user-123", claims.Subject())
	assert.Equal(t, "user-123", claims.UserID())
	assert.Equal(t, "user@example.com", claims.Email())
	assert.Equal(t, RoleCompany, claims.Role())
	assert.True(t, claims.IsAtLeast(RoleCollaborator))
	assert.False(t, claims.IsAtLeast(RoleProducer))

	expiresIn := time.Until(claims.Expires())
	assert.Greater(t, expiresIn, 23*time.Hour)
	assert.LessOrEqual(t, expiresIn, 24*time.Hour)
}

func TestTokenServiceValidateRejectsTampering(t *testing.T) {
	svc := newTestTokenService()
	identity := testIdentity{id: "user-123", email: "user@example.com"}

	tokenString, err := svc.Generate(context.Background(), identity, RoleStudent)
	require.NoError(t, err)

	t.Run("wrong signing key", func(t *testing.T) {
		other := NewTokenService([]byte("different-key"), 24, "eadcore", jwt.ClaimStrings{"eadcore-app"}, nil)
		_, err := other.Validate(tokenString)
		require.Error(t, err)
		assert.True(t, IsMalformedError(err))
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.Validate("not.a.token")
		require.Error(t, err)
		assert.True(t, IsMalformedError(err))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenService([]byte("test-signing-key"), 24, "someone-else", jwt.ClaimStrings{"eadcore-app"}, nil)
		_, err := other.Validate(tokenString)
		require.Error(t, err)
	})
}

func TestTokenServiceValidateExpired(t *testing.T) {
	svc := newTestTokenService()

	now := time.Now().Add(-2 * time.Hour)
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "eadcore",
			Subject:   "user-123",
			Audience:  jwt.ClaimStrings{"eadcore-app"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		UID:      "user-123",
		UserRole: string(RoleStudent),
	}

	tokenString, err := svc.SignClaims(claims)
	require.NoError(t, err)

	_, err = svc.Validate(tokenString)
	require.Error(t, err)
	assert.True(t, IsTokenExpiredError(err))
}

func TestTokenServiceSignClaimsNil(t *testing.T) {
	svc := newTestTokenService()
	_, err := svc.SignClaims(nil)
	require.Error(t, err)
}

func TestJWTClaimsRoleFallback(t *testing.T) {
	t.Run("unknown role reads as student", func(t *testing.T) {
		claims := &JWTClaims{UserRole: "superadmin"}
		assert.Equal(t, RoleStudent, claims.Role())
	})

	t.Run("empty role reads as student", func(t *testing.T) {
		claims := &JWTClaims{}
		assert.Equal(t, RoleStudent, claims.Role())
		assert.True(t, claims.HasRole(RoleStudent))
	})

	t.Run("uid falls back to subject", func(t *testing.T) {
		claims := &JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"}}
		assert.Equal(t, "sub-1", claims.UserID())
	})
}
