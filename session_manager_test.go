package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newManagerFixture() (*SessionManager, *fakeCredentialStore, *fakeRepoManager, SessionStore) {
	creds := newFakeCredentialStore()
	repos := newFakeRepoManager()
	sessions := NewMemorySessionStore()
	resolver := NewRoleResolver(repos)
	throttle := NewLoginThrottle(newFakeThrottles())

	signIn := NewSignInOrchestrator(creds, throttle, resolver, repos,
		WithSignInSessionStore(sessions),
	)
	signOut := NewSignOutOrchestrator(creds, sessions, resolver)

	manager := NewSessionManager(creds, sessions, resolver, signIn, signOut)
	return manager, creds, repos, sessions
}

func TestManagerStartsLoading(t *testing.T) {
	manager, _, _, _ := newManagerFixture()
	assert.True(t, manager.State().Loading)
	assert.False(t, manager.State().IsAuthenticated())
}

func TestManagerRestoreWithoutSession(t *testing.T) {
	manager, _, _, _ := newManagerFixture()

	state := manager.Restore(context.Background())

	assert.False(t, state.Loading)
	assert.False(t, state.IsAuthenticated())
}

func TestManagerRestoreResolvesRole(t *testing.T) {
	manager, _, repos, sessions := newManagerFixture()
	user := &AuthUser{ID: uuid.New(), Email: "produtor@example.com"}
	repos.producers.byAuthUser[user.ID] = &Producer{ID: uuid.New(), AuthUserID: user.ID, IsActive: true}

	expires := time.Now().Add(time.Hour)
	sessions.Set(&AuthSession{AccessToken: "tok", ExpiresAt: &expires, User: user})

	state := manager.Restore(context.Background())

	assert.False(t, state.Loading)
	assert.True(t, state.IsProducer())
	assert.False(t, state.IsStudent())
}

func TestManagerSignInUpdatesStateAndNotifies(t *testing.T) {
	manager, creds, _, _ := newManagerFixture()
	creds.register("aluno@example.com", "senha123")

	var notified []SessionState
	manager.OnChange(func(s SessionState) { notified = append(notified, s) })

	state, err := manager.SignIn(context.Background(), SignInRequest{
		Email:    "aluno@example.com",
		Password: "senha123",
	})

	assert.NoError(t, err)
	assert.True(t, state.IsAuthenticated())
	assert.True(t, state.IsStudent())
	assert.NotEmpty(t, notified)
}

func TestManagerSignUp(t *testing.T) {
	manager, _, _, sessions := newManagerFixture()

	state, err := manager.SignUp(context.Background(), "novo@example.com", "senha123", nil)

	assert.NoError(t, err)
	assert.True(t, state.IsAuthenticated())
	assert.True(t, state.IsStudent())
	assert.NotNil(t, sessions.Get())
}

func TestManagerSignUpRejectsWeakPassword(t *testing.T) {
	manager, _, _, sessions := newManagerFixture()

	_, err := manager.SignUp(context.Background(), "novo@example.com", "12345678", nil)

	assert.Error(t, err)
	assert.Nil(t, sessions.Get())
}

func TestManagerSignOutResetsState(t *testing.T) {
	manager, creds, _, _ := newManagerFixture()
	creds.register("aluno@example.com", "senha123")

	_, err := manager.SignIn(context.Background(), SignInRequest{
		Email:    "aluno@example.com",
		Password: "senha123",
	})
	assert.NoError(t, err)

	err = manager.SignOut(context.Background())
	assert.NoError(t, err)
	assert.False(t, manager.State().IsAuthenticated())
}

func TestManagerHandleTransportErrorRefreshFailure(t *testing.T) {
	manager, creds, _, sessions := newManagerFixture()
	creds.register("aluno@example.com", "senha123")

	_, err := manager.SignIn(context.Background(), SignInRequest{
		Email:    "aluno@example.com",
		Password: "senha123",
	})
	assert.NoError(t, err)

	manager.HandleTransportError(context.Background(), errors.New("invalid refresh token"))

	assert.Nil(t, sessions.Get())
	assert.False(t, manager.State().IsAuthenticated())
}

func TestManagerHandleTransportErrorNetworkKeepsSession(t *testing.T) {
	manager, creds, _, sessions := newManagerFixture()
	creds.register("aluno@example.com", "senha123")

	_, err := manager.SignIn(context.Background(), SignInRequest{
		Email:    "aluno@example.com",
		Password: "senha123",
	})
	assert.NoError(t, err)

	manager.HandleTransportError(context.Background(), errors.New("connection refused"))

	assert.NotNil(t, sessions.Get())
	assert.True(t, manager.State().IsAuthenticated())
}

func TestManagerChangePasswordValidates(t *testing.T) {
	manager, creds, _, _ := newManagerFixture()
	creds.register("aluno@example.com", "senha123")

	_, err := manager.SignIn(context.Background(), SignInRequest{
		Email:    "aluno@example.com",
		Password: "senha123",
	})
	assert.NoError(t, err)

	assert.Error(t, manager.ChangePassword(context.Background(), "12345678"))
	assert.NoError(t, manager.ChangePassword(context.Background(), "novaSenha1"))
	assert.NotEmpty(t, creds.updates)
}

func TestManagerMonitorOnlyForCompanyOwners(t *testing.T) {
	creds := newFakeCredentialStore()
	repos := newFakeRepoManager()
	sessions := NewMemorySessionStore()
	resolver := NewRoleResolver(repos)
	throttle := NewLoginThrottle(newFakeThrottles())

	signIn := NewSignInOrchestrator(creds, throttle, resolver, repos,
		WithSignInSessionStore(sessions),
	)
	signOut := NewSignOutOrchestrator(creds, sessions, resolver)
	manager := NewSessionManager(creds, sessions, resolver, signIn, signOut,
		WithSessionMonitor(NewSubscriptionMonitor(repos)),
	)

	hasMonitor := func() bool {
		manager.mu.RLock()
		defer manager.mu.RUnlock()
		return manager.monitorCancel != nil
	}

	expires := time.Now().Add(time.Hour)
	companyID := uuid.New()

	owner := &AuthUser{ID: uuid.New(), Email: "empresa@example.com"}
	repos.companies.byAuthUser[owner.ID] = &Company{ID: companyID, SubscriptionStatus: SubscriptionActive}
	sessions.Set(&AuthSession{AccessToken: "tok", ExpiresAt: &expires, User: owner})
	state := manager.Restore(context.Background())
	assert.True(t, state.IsCompany())
	assert.True(t, hasMonitor())

	// Collaborator sessions rely on the verdict resolved into RoleData
	// and never poll billing themselves.
	member := &AuthUser{ID: uuid.New(), Email: "colab@example.com"}
	repos.collaborators.byAuthUser[member.ID] = &Collaborator{
		ID:        uuid.New(),
		CompanyID: companyID,
		Company:   &Company{ID: companyID, SubscriptionStatus: SubscriptionActive},
	}
	sessions.Set(&AuthSession{AccessToken: "tok2", ExpiresAt: &expires, User: member})
	state = manager.Restore(context.Background())
	assert.True(t, state.IsCollaborator())
	assert.False(t, hasMonitor())
}

func TestSessionStateSubscriptionGate(t *testing.T) {
	blocked := SessionState{
		Role:         RoleData{Role: RoleCompany},
		Subscription: SubscriptionState{ShouldBlock: true},
	}
	assert.True(t, blocked.IsSubscriptionBlocked())

	// Students are never blocked by billing state.
	student := SessionState{
		Role:         RoleData{Role: RoleStudent},
		Subscription: SubscriptionState{ShouldBlock: true},
	}
	assert.False(t, student.IsSubscriptionBlocked())
}
