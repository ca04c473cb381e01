package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuthUser is the credential store's view of an identity. Metadata carries
// the role stamp written back by the sign-in paths.
type AuthUser struct {
	ID               uuid.UUID      `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`
	CreatedAt        *time.Time     `json:"created_at,omitempty"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
}

// RoleMetadata returns the role stamped into the user metadata, if any.
func (u *AuthUser) RoleMetadata() (Role, bool) {
	if u == nil || u.Metadata == nil {
		return "", false
	}
	raw, ok := u.Metadata["role"].(string)
	if !ok {
		return "", false
	}
	return ParseRole(raw)
}

// Identity adapts the user into the Identity interface.
func (u *AuthUser) Identity() Identity {
	return authUserIdentity{user: u}
}

type authUserIdentity struct {
	user *AuthUser
}

func (a authUserIdentity) ID() string {
	if a.user == nil {
		return ""
	}
	return a.user.ID.String()
}

func (a authUserIdentity) UserUUID() (uuid.UUID, error) {
	if a.user == nil {
		return uuid.Nil, ErrIdentityNotFound
	}
	return a.user.ID, nil
}

func (a authUserIdentity) Email() string {
	if a.user == nil {
		return ""
	}
	return a.user.Email
}

var _ Identity = authUserIdentity{}

// AuthSession is a raw credential-store session: the token pair plus the
// owning user.
type AuthSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	User         *AuthUser  `json:"user,omitempty"`
}

// Valid reports whether the session still looks usable. Sessions already
// known invalid are not worth a server-side logout call.
func (s *AuthSession) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return false
	}
	return true
}

// UserAttributes is the mutable subset accepted by UpdateUser.
type UserAttributes struct {
	Password string         `json:"password,omitempty"`
	Email    string         `json:"email,omitempty"`
	Metadata map[string]any `json:"data,omitempty"`
}

// OTPType distinguishes one-time-token flows.
type OTPType = string

const (
	OTPTypeInvite   OTPType = "invite"
	OTPTypeRecovery OTPType = "recovery"
	OTPTypeSignup   OTPType = "signup"
)

// VerifyOTPParams carries a one-time token verification request.
type VerifyOTPParams struct {
	Type  OTPType `json:"type"`
	Token string  `json:"token"`
	Email string  `json:"email,omitempty"`
}

// CredentialStore is the external credential/session backend. It is treated
// as a black box: every method maps to one remote endpoint of the hosted
// auth service.
type CredentialStore interface {
	SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
	UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*AuthUser, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	GetUser(ctx context.Context, accessToken string) (*AuthUser, error)
	RefreshSession(ctx context.Context, refreshToken string) (*AuthSession, error)
	VerifyOTP(ctx context.Context, params VerifyOTPParams) (*AuthSession, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) (*AuthSession, error)
}

// FragmentSessionExtractor is an optional CredentialStore capability: some
// backends can resolve a session straight out of a redirect URL fragment.
type FragmentSessionExtractor interface {
	SessionFromFragment(ctx context.Context, fragment string) (*AuthSession, error)
}

// SessionStore holds the local (client-side) session state. Clearing it must
// always succeed; it is the first thing sign-out does.
type SessionStore interface {
	Get() *AuthSession
	Set(session *AuthSession)
	Clear()
}

// NewMemorySessionStore returns the default in-process SessionStore.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{}
}

type memorySessionStore struct {
	mu      sync.RWMutex
	session *AuthSession
}

func (m *memorySessionStore) Get() *AuthSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *memorySessionStore) Set(session *AuthSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
}

func (m *memorySessionStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
}

// BillingStatus is the payment provider's answer to a subscription check.
type BillingStatus struct {
	Status string     `json:"status"`
	EndsAt *time.Time `json:"ends_at,omitempty"`
}

// RemoteFunctions groups the privileged serverless functions this core
// consumes. Their network shape is owned by the backend, not by us.
type RemoteFunctions interface {
	// ProvisionCompanyAuthUser creates (or links) an auth identity for a
	// pre-existing company record. Used by the company sign-in bootstrap
	// fallback.
	ProvisionCompanyAuthUser(ctx context.Context, companyID uuid.UUID, email, password string) (*AuthUser, error)

	// CheckSubscription asks the billing provider for the company's current
	// subscription state.
	CheckSubscription(ctx context.Context, companyID uuid.UUID) (*BillingStatus, error)

	// CreateCustomerPortal returns a billing portal URL for the company.
	CreateCustomerPortal(ctx context.Context, companyID uuid.UUID) (string, error)
}
