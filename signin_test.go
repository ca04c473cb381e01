package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type fakeCredentialStore struct {
	mu        sync.Mutex
	passwords map[string]string
	users     map[string]*AuthUser
	signInErr error
	signOuts  []string
	updates   []UserAttributes
	panicNext bool
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{
		passwords: map[string]string{},
		users:     map[string]*AuthUser{},
	}
}

func (f *fakeCredentialStore) register(email, password string) *AuthUser {
	user := &AuthUser{ID: uuid.New(), Email: email}
	f.passwords[email] = password
	f.users[email] = user
	return user
}

func (f *fakeCredentialStore) SignInWithPassword(_ context.Context, email, password string) (*AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.panicNext {
		f.panicNext = false
		panic("credential store exploded")
	}
	if f.signInErr != nil {
		return nil, f.signInErr
	}

	stored, ok := f.passwords[email]
	if !ok || stored != password {
		return nil, errors.New("invalid login credentials")
	}

	expires := time.Now().Add(time.Hour)
	return &AuthSession{
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
		ExpiresAt:    &expires,
		User:         f.users[email],
	}, nil
}

func (f *fakeCredentialStore) SignUp(_ context.Context, email, password string, metadata map[string]any) (*AuthSession, error) {
	user := f.register(email, password)
	user.Metadata = metadata
	return &AuthSession{AccessToken: "access-" + email, User: user}, nil
}

func (f *fakeCredentialStore) SignOut(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts = append(f.signOuts, accessToken)
	return nil
}

func (f *fakeCredentialStore) UpdateUser(_ context.Context, _ string, attrs UserAttributes) (*AuthUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, attrs)
	return nil, nil
}

func (f *fakeCredentialStore) ResetPasswordForEmail(context.Context, string, string) error {
	return nil
}

func (f *fakeCredentialStore) GetUser(context.Context, string) (*AuthUser, error) {
	return nil, ErrIdentityNotFound
}

func (f *fakeCredentialStore) RefreshSession(context.Context, string) (*AuthSession, error) {
	return nil, errors.New("invalid refresh token")
}

func (f *fakeCredentialStore) VerifyOTP(context.Context, VerifyOTPParams) (*AuthSession, error) {
	return nil, errors.New("otp not configured")
}

func (f *fakeCredentialStore) SetSession(_ context.Context, accessToken, refreshToken string) (*AuthSession, error) {
	return &AuthSession{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

type capturedEvents struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (c *capturedEvents) sink() ActivitySink {
	return ActivitySinkFunc(func(_ context.Context, e ActivityEvent) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, e)
		return nil
	})
}

func (c *capturedEvents) ofType(t ActivityEventType) []ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ActivityEvent
	for _, e := range c.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

func newSignInFixture() (*SignInOrchestrator, *fakeCredentialStore, *fakeRepoManager, *capturedEvents) {
	creds := newFakeCredentialStore()
	repos := newFakeRepoManager()
	events := &capturedEvents{}
	throttle := NewLoginThrottle(newFakeThrottles())
	resolver := NewRoleResolver(repos)

	orchestrator := NewSignInOrchestrator(creds, throttle, resolver, repos,
		WithSignInActivitySink(events.sink()),
	)

	return orchestrator, creds, repos, events
}

func TestSignInDefaultPath(t *testing.T) {
	orchestrator, creds, _, events := newSignInFixture()
	creds.register("aluno@example.com", "senha123")

	result, err := orchestrator.SignIn(context.Background(), SignInRequest{
		Email:    "aluno@example.com",
		Password: "senha123",
	})

	assert.NoError(t, err)
	assert.Equal(t, RoleStudent, result.Role.Role)
	assert.NotNil(t, result.Session)
	assert.Len(t, events.ofType(ActivityEventLoginSuccess), 1)
}

func TestSignInRejectsBadInputWithoutThrottling(t *testing.T) {
	orchestrator, _, _, events := newSignInFixture()

	_, err := orchestrator.SignIn(context.Background(), SignInRequest{Email: "not-an-email", Password: "x"})
	assert.Error(t, err)

	failures := events.ofType(ActivityEventLoginFailure)
	if assert.Len(t, failures, 1) {
		assert.Equal(t, "validation", failures[0].Metadata["reason"])
	}
}

func TestSignInWrongPasswordCountsAttempt(t *testing.T) {
	orchestrator, creds, _, _ := newSignInFixture()
	creds.register("user@x.com", "senha123")

	_, err := orchestrator.SignIn(context.Background(), SignInRequest{
		Email:    "user@x.com",
		Password: "errada99",
	})

	assert.Error(t, err)
	var richErr *goerrors.Error
	if assert.True(t, goerrors.As(err, &richErr)) {
		assert.Equal(t, TextCodeInvalidCreds, richErr.TextCode)
		assert.Contains(t, richErr.Message, "4")
	}
}

func TestSignInLockoutNeverReachesCredentialStore(t *testing.T) {
	orchestrator, creds, _, events := newSignInFixture()
	creds.register("user@x.com", "senha123")

	for i := 0; i < DefaultMaxLoginAttempts; i++ {
		orchestrator.SignIn(context.Background(), SignInRequest{Email: "user@x.com", Password: "errada99"})
	}

	creds.signInErr = errors.New("credential store must not be called")
	_, err := orchestrator.SignIn(context.Background(), SignInRequest{
		Email:    "user@x.com",
		Password: "senha123",
	})

	var richErr *goerrors.Error
	if assert.True(t, goerrors.As(err, &richErr)) {
		assert.Equal(t, TextCodeAccountLocked, richErr.TextCode)
	}

	locked := events.ofType(ActivityEventLoginFailure)
	assert.Equal(t, "account_locked", locked[len(locked)-1].Metadata["reason"])
}

func TestSignInProducerPathHappy(t *testing.T) {
	orchestrator, creds, repos, _ := newSignInFixture()
	user := creds.register("produtor@example.com", "senha123")
	repos.producers.byAuthUser[user.ID] = &Producer{ID: uuid.New(), AuthUserID: user.ID, IsActive: true}

	result, err := orchestrator.SignIn(context.Background(), SignInRequest{
		Email:    "produtor@example.com",
		Password: "senha123",
		RoleHint: RoleProducer,
	})

	assert.NoError(t, err)
	assert.Equal(t, RoleProducer, result.Role.Role)
	// The resolved role gets stamped back into the credential metadata.
	if assert.NotEmpty(t, creds.updates) {
		assert.Equal(t, string(RoleProducer), creds.updates[0].Metadata["role"])
	}
}

func TestSignInProducerPathDeniesNonProducer(t *testing.T) {
	orchestrator, creds, _, _ := newSignInFixture()
	creds.register("aluno@example.com", "senha123")

	_, err := orchestrator.SignIn(context.Background(), SignInRequest{
		Email:    "aluno@example.com",
		Password: "senha123",
		RoleHint: RoleProducer,
	})

	var richErr *goerrors.Error
	if assert.True(t, goerrors.As(err, &richErr)) {
		assert.Equal(t, TextCodeAccessDenied, richErr.TextCode)
	}
	// The freshly created server session was torn down.
	assert.Len(t, creds.signOuts, 1)
}

func TestSignInCompanyBootstrapFallback(t *testing.T) {
	orchestrator, creds, repos, _ := newSignInFixture()
	companyID := uuid.New()
	repos.companies.byEmail = map[string]*Company{
		"empresa@example.com": {ID: companyID, Email: "empresa@example.com"},
	}

	remote := &fakeRemote{}
	orchestrator.remote = remoteProvisioner{creds: creds, fakeRemote: remote, repos: repos}

	result, err := orchestrator.SignIn(context.Background(), SignInRequest{
		Email:    "empresa@example.com",
		Password: "senha123",
		RoleHint: RoleCompany,
	})

	assert.NoError(t, err)
	assert.Equal(t, RoleCompany, result.Role.Role)
	assert.Contains(t, repos.companies.linked, companyID.String())
}

// remoteProvisioner simulates the privileged function: it creates the
// credential record and links the tenant row like the real backend does.
type remoteProvisioner struct {
	*fakeRemote
	creds *fakeCredentialStore
	repos *fakeRepoManager
}

func (r remoteProvisioner) ProvisionCompanyAuthUser(_ context.Context, companyID uuid.UUID, email, password string) (*AuthUser, error) {
	user := r.creds.register(email, password)
	if company, ok := r.repos.companies.byEmail[NormalizeThrottleKey(email)]; ok {
		company.AuthUserID = &user.ID
		r.repos.companies.byAuthUser[user.ID] = company
	}
	_ = companyID
	return user, nil
}

func TestSignInCompanyNoMatchReturnsCredentialsError(t *testing.T) {
	orchestrator, _, repos, _ := newSignInFixture()
	orchestrator.remote = &fakeRemote{}
	repos.companies.byEmail = map[string]*Company{}

	_, err := orchestrator.SignIn(context.Background(), SignInRequest{
		Email:    "ghost@example.com",
		Password: "senha123",
		RoleHint: RoleCompany,
	})

	var richErr *goerrors.Error
	if assert.True(t, goerrors.As(err, &richErr)) {
		assert.Equal(t, TextCodeInvalidCreds, richErr.TextCode)
	}
}

func TestSignInNeverPanics(t *testing.T) {
	orchestrator, creds, _, events := newSignInFixture()
	creds.register("boom@example.com", "senha123")
	creds.panicNext = true

	result, err := orchestrator.SignIn(context.Background(), SignInRequest{
		Email:    "boom@example.com",
		Password: "senha123",
	})

	assert.Nil(t, result)
	var richErr *goerrors.Error
	if assert.True(t, goerrors.As(err, &richErr)) {
		assert.Equal(t, TextCodeConnectionError, richErr.TextCode)
	}
	assert.NotEmpty(t, events.ofType(ActivityEventLoginFailure))
}

func TestSignInUniformCredentialsMessage(t *testing.T) {
	orchestrator, creds, _, _ := newSignInFixture()
	creds.register("known@example.com", "senha123")

	_, errUnknown := orchestrator.SignIn(context.Background(), SignInRequest{
		Email: "unknown@example.com", Password: "whatever1",
	})
	_, errWrong := orchestrator.SignIn(context.Background(), SignInRequest{
		Email: "known@example.com", Password: "whatever1",
	})

	// Unknown user and wrong password read the same to the caller.
	message := func(err error) string {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr.Message
		}
		return err.Error()
	}
	assert.True(t, strings.HasPrefix(message(errUnknown), "Email ou senha incorretos"))
	assert.True(t, strings.HasPrefix(message(errWrong), "Email ou senha incorretos"))
}
