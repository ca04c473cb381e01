package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateAuthUsers = `CREATE TABLE auth_users (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    email_confirmed_at TIMESTAMP NULL,
    last_sign_in_at TIMESTAMP NULL,
    metadata TEXT,
    refresh_token TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP
);`
	sqliteCreateOneTimeTokens = `CREATE TABLE one_time_tokens (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL,
    token_hash TEXT NOT NULL,
    token_type TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    used_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`
)

func setupLocalStore(t *testing.T) (*LocalCredentialStore, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec(sqliteCreateAuthUsers)
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateOneTimeTokens)
	require.NoError(t, err)

	tokens := NewTokenService([]byte("test-signing-key"), 1, "test-issuer", nil, nil)
	store := NewLocalCredentialStore(bunDB, tokens)

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return store, cleanup
}

func TestLocalCredentialStoreSignUpAndSignIn(t *testing.T) {
	store, cleanup := setupLocalStore(t)
	defer cleanup()

	ctx := context.Background()

	created, err := store.SignUp(ctx, "maria@empresa.com.br", "Senha123", map[string]any{
		"role": "company",
	})
	require.NoError(t, err)
	require.NotNil(t, created.User)
	assert.NotEmpty(t, created.AccessToken)
	assert.NotEmpty(t, created.RefreshToken)

	session, err := store.SignInWithPassword(ctx, "maria@empresa.com.br", "Senha123")
	require.NoError(t, err)
	require.NotNil(t, session.User)
	assert.Equal(t, created.User.ID, session.User.ID)
	assert.NotNil(t, session.User.LastSignInAt)

	role, ok := session.User.RoleMetadata()
	assert.True(t, ok)
	assert.Equal(t, RoleCompany, role)

	user, err := store.GetUser(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, user.ID)
}

func TestLocalCredentialStoreSignInEmailCaseInsensitive(t *testing.T) {
	store, cleanup := setupLocalStore(t)
	defer cleanup()

	ctx := context.Background()

	_, err := store.SignUp(ctx, "joao@escola.com.br", "Senha123", nil)
	require.NoError(t, err)

	session, err := store.SignInWithPassword(ctx, "JOAO@Escola.com.BR", "Senha123")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
}

func TestLocalCredentialStoreUniformCredentialFailures(t *testing.T) {
	store, cleanup := setupLocalStore(t)
	defer cleanup()

	ctx := context.Background()

	_, err := store.SignUp(ctx, "ana@escola.com.br", "Senha123", nil)
	require.NoError(t, err)

	_, wrongPassword := store.SignInWithPassword(ctx, "ana@escola.com.br", "senha-errada")
	_, unknownEmail := store.SignInWithPassword(ctx, "ninguem@escola.com.br", "Senha123")

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.True(t, IsInvalidCredentialsError(wrongPassword))
}

func TestLocalCredentialStoreRefreshRotation(t *testing.T) {
	store, cleanup := setupLocalStore(t)
	defer cleanup()

	ctx := context.Background()

	session, err := store.SignUp(ctx, "pedro@escola.com.br", "Senha123", nil)
	require.NoError(t, err)

	refreshed, err := store.RefreshSession(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)

	_, err = store.RefreshSession(ctx, session.RefreshToken)
	require.Error(t, err)
	assert.True(t, IsRefreshTokenError(err))

	_, err = store.RefreshSession(ctx, "")
	require.Error(t, err)
	assert.True(t, IsRefreshTokenError(err))
}

func TestLocalCredentialStoreSignOutRevokesRefresh(t *testing.T) {
	store, cleanup := setupLocalStore(t)
	defer cleanup()

	ctx := context.Background()

	session, err := store.SignUp(ctx, "lia@escola.com.br", "Senha123", nil)
	require.NoError(t, err)

	require.NoError(t, store.SignOut(ctx, session.AccessToken))

	_, err = store.RefreshSession(ctx, session.RefreshToken)
	require.Error(t, err)

	// A garbage token has nothing to revoke and is not an error.
	assert.NoError(t, store.SignOut(ctx, "not-a-token"))
}

func TestLocalCredentialStoreUpdateUser(t *testing.T) {
	store, cleanup := setupLocalStore(t)
	defer cleanup()

	ctx := context.Background()

	session, err := store.SignUp(ctx, "rui@escola.com.br", "Senha123", map[string]any{
		"role": "collaborator",
	})
	require.NoError(t, err)

	updated, err := store.UpdateUser(ctx, session.AccessToken, UserAttributes{
		Password: "NovaSenha456",
		Metadata: map[string]any{"company_id": "c-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "collaborator", updated.Metadata["role"])
	assert.Equal(t, "c-1", updated.Metadata["company_id"])

	_, err = store.SignInWithPassword(ctx, "rui@escola.com.br", "Senha123")
	require.Error(t, err)

	_, err = store.SignInWithPassword(ctx, "rui@escola.com.br", "NovaSenha456")
	require.NoError(t, err)
}

func TestLocalCredentialStoreInviteOTP(t *testing.T) {
	store, cleanup := setupLocalStore(t)
	defer cleanup()

	ctx := context.Background()
	email := "convidada@empresa.com.br"

	raw, err := store.CreateOneTimeToken(ctx, email, OTPTypeInvite, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	t.Run("wrong token rejected", func(t *testing.T) {
		_, err := store.VerifyOTP(ctx, VerifyOTPParams{Type: OTPTypeInvite, Token: "wrong", Email: email})
		require.Error(t, err)
	})

	t.Run("wrong type rejected", func(t *testing.T) {
		_, err := store.VerifyOTP(ctx, VerifyOTPParams{Type: OTPTypeRecovery, Token: raw, Email: email})
		require.Error(t, err)
	})

	t.Run("valid token provisions shell account", func(t *testing.T) {
		session, err := store.VerifyOTP(ctx, VerifyOTPParams{Type: OTPTypeInvite, Token: raw, Email: email})
		require.NoError(t, err)
		require.NotNil(t, session.User)
		assert.Equal(t, email, session.User.Email)
		assert.NotNil(t, session.User.EmailConfirmedAt)
	})

	t.Run("token cannot be replayed", func(t *testing.T) {
		_, err := store.VerifyOTP(ctx, VerifyOTPParams{Type: OTPTypeInvite, Token: raw, Email: email})
		require.Error(t, err)
	})
}

func TestLocalCredentialStoreExpiredOTP(t *testing.T) {
	store, cleanup := setupLocalStore(t)
	defer cleanup()

	ctx := context.Background()
	email := "tarde@empresa.com.br"

	raw, err := store.CreateOneTimeToken(ctx, email, OTPTypeInvite, -time.Minute)
	require.NoError(t, err)

	_, err = store.VerifyOTP(ctx, VerifyOTPParams{Type: OTPTypeInvite, Token: raw, Email: email})
	require.Error(t, err)
}

func TestLocalCredentialStoreResetPasswordUnknownEmail(t *testing.T) {
	store, cleanup := setupLocalStore(t)
	defer cleanup()

	// Unknown addresses must not be distinguishable from known ones.
	assert.NoError(t, store.ResetPasswordForEmail(context.Background(), "quem@escola.com.br", "/reset"))
}

func TestLocalCredentialStoreSetSession(t *testing.T) {
	store, cleanup := setupLocalStore(t)
	defer cleanup()

	ctx := context.Background()

	session, err := store.SignUp(ctx, "vera@escola.com.br", "Senha123", nil)
	require.NoError(t, err)

	restored, err := store.SetSession(ctx, session.AccessToken, session.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, restored.User)
	assert.Equal(t, session.User.ID, restored.User.ID)
	require.NotNil(t, restored.ExpiresAt)
	assert.True(t, restored.ExpiresAt.After(time.Now()))

	_, err = store.SetSession(ctx, "broken-token", session.RefreshToken)
	require.Error(t, err)
}
