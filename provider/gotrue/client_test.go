package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eadcore/go-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUserID = uuid.MustParse("0b5e9b6a-6c3f-4f59-9a1f-2d42dbd0a001")

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func fakeSessionBody(email string) map[string]any {
	return map[string]any{
		"access_token":  "access-abc",
		"refresh_token": "refresh-abc",
		"expires_in":    3600,
		"user": map[string]any{
			"id":    testUserID.String(),
			"email": email,
			"user_metadata": map[string]any{
				"role": "company",
			},
		},
	}
}

func newTestBackend(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != "Senha123" {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":             "invalid_grant",
					"error_description": "Invalid login credentials",
				})
				return
			}
			writeJSON(w, http.StatusOK, fakeSessionBody(body["email"]))
		case "refresh_token":
			if body["refresh_token"] != "refresh-abc" {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":             "invalid_grant",
					"error_description": "Invalid Refresh Token",
				})
				return
			}
			writeJSON(w, http.StatusOK, fakeSessionBody("maria@empresa.com.br"))
		default:
			writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "unsupported grant"})
		}
	})

	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-abc" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":    testUserID.String(),
			"email": "maria@empresa.com.br",
			"user_metadata": map[string]any{
				"role": "company",
			},
		})
	})

	mux.HandleFunc("/auth/v1/verify", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["token"] != "otp-123" || body["type"] != "invite" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Token has expired or is invalid"})
			return
		}
		writeJSON(w, http.StatusOK, fakeSessionBody(body["email"]))
	})

	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(DefaultConfig(server.URL+"/auth/v1", "anon-key"))
	require.NoError(t, err)

	return server, client
}

func TestClientSignInWithPassword(t *testing.T) {
	_, client := newTestBackend(t)

	session, err := client.SignInWithPassword(context.Background(), "maria@empresa.com.br", "Senha123")
	require.NoError(t, err)

	assert.Equal(t, "access-abc", session.AccessToken)
	assert.Equal(t, "refresh-abc", session.RefreshToken)
	require.NotNil(t, session.ExpiresAt)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	require.NotNil(t, session.User)
	assert.Equal(t, testUserID, session.User.ID)

	role, ok := session.User.RoleMetadata()
	assert.True(t, ok)
	assert.Equal(t, auth.RoleCompany, role)
}

func TestClientSignInInvalidCredentials(t *testing.T) {
	_, client := newTestBackend(t)

	_, err := client.SignInWithPassword(context.Background(), "maria@empresa.com.br", "senha-errada")
	require.Error(t, err)
	assert.True(t, auth.IsInvalidCredentialsError(err))
}

func TestClientRefreshSession(t *testing.T) {
	_, client := newTestBackend(t)

	session, err := client.RefreshSession(context.Background(), "refresh-abc")
	require.NoError(t, err)
	assert.Equal(t, "access-abc", session.AccessToken)

	_, err = client.RefreshSession(context.Background(), "stale-token")
	require.Error(t, err)
	assert.True(t, auth.IsRefreshTokenError(err))
}

func TestClientVerifyOTP(t *testing.T) {
	_, client := newTestBackend(t)

	session, err := client.VerifyOTP(context.Background(), auth.VerifyOTPParams{
		Type:  auth.OTPTypeInvite,
		Token: "otp-123",
		Email: "convidada@empresa.com.br",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)

	_, err = client.VerifyOTP(context.Background(), auth.VerifyOTPParams{
		Type:  auth.OTPTypeInvite,
		Token: "expired",
		Email: "convidada@empresa.com.br",
	})
	require.Error(t, err)
}

func TestClientSessionFromFragment(t *testing.T) {
	_, client := newTestBackend(t)

	session, err := client.SessionFromFragment(context.Background(), "#access_token=access-abc&refresh_token=refresh-abc&type=invite")
	require.NoError(t, err)
	assert.Equal(t, "access-abc", session.AccessToken)
	assert.Equal(t, "refresh-abc", session.RefreshToken)
	require.NotNil(t, session.User)
	assert.Equal(t, "maria@empresa.com.br", session.User.Email)

	_, err = client.SessionFromFragment(context.Background(), "#type=invite")
	require.Error(t, err)
}

func TestClientNetworkErrorSurfacesAsTransportFailure(t *testing.T) {
	server, client := newTestBackend(t)
	server.Close()

	_, err := client.SignInWithPassword(context.Background(), "maria@empresa.com.br", "Senha123")
	require.Error(t, err)
	assert.True(t, auth.IsNetworkError(err))
}

func TestAdminClientProvisionCompanyAuthUser(t *testing.T) {
	companyID := uuid.MustParse("7f3a2e1c-01aa-4e50-8a9e-56b2a4b0c001")

	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/functions/v1/provision-company-user", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, companyID.String(), body["company_id"])

		writeJSON(w, http.StatusOK, map[string]any{
			"user": map[string]any{
				"id":    testUserID.String(),
				"email": body["email"],
				"user_metadata": map[string]any{
					"role":       "company",
					"company_id": companyID.String(),
				},
			},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := DefaultConfig(server.URL+"/auth/v1", "anon-key")
	cfg.ServiceRoleKey = "service-role-key"

	admin, err := NewAdminClient(cfg)
	require.NoError(t, err)

	user, err := admin.ProvisionCompanyAuthUser(context.Background(), companyID, "empresa@empresa.com.br", "Senha123")
	require.NoError(t, err)
	assert.Equal(t, testUserID, user.ID)
	assert.Equal(t, "Bearer service-role-key", gotAuth)

	role, ok := user.RoleMetadata()
	assert.True(t, ok)
	assert.Equal(t, auth.RoleCompany, role)
}

func TestAdminClientCheckSubscription(t *testing.T) {
	endsAt := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/functions/v1/check-subscription", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "active",
			"ends_at": endsAt.Format(time.RFC3339),
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := DefaultConfig(server.URL+"/auth/v1", "anon-key")
	cfg.ServiceRoleKey = "service-role-key"

	admin, err := NewAdminClient(cfg)
	require.NoError(t, err)

	status, err := admin.CheckSubscription(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "active", status.Status)
	require.NotNil(t, status.EndsAt)
	assert.True(t, status.EndsAt.Equal(endsAt))
}

func TestAdminClientRequiresServiceRoleKey(t *testing.T) {
	_, err := NewAdminClient(DefaultConfig("https://example.test/auth/v1", "anon-key"))
	require.Error(t, err)
}
