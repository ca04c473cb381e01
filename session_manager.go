package auth

import (
	"context"
	"sync"
	"time"
)

// SessionState is the snapshot handed to the consuming application layer.
// Loading stays true until both the raw session restoration and the first
// role resolution have completed.
type SessionState struct {
	User                *AuthUser
	Session             *AuthSession
	Loading             bool
	Role                RoleData
	NeedsPasswordChange bool
	Subscription        SubscriptionState
	Warning             string
}

func (s SessionState) IsAuthenticated() bool { return s.User != nil }
func (s SessionState) IsProducer() bool      { return s.Role.Role == RoleProducer }
func (s SessionState) IsCompany() bool       { return s.Role.Role == RoleCompany }
func (s SessionState) IsCollaborator() bool  { return s.Role.Role == RoleCollaborator }
func (s SessionState) IsStudent() bool       { return s.Role.Role == RoleStudent }

// CompanyUserData returns the collaborator membership record for
// collaborator sessions, nil for every other role.
func (s SessionState) CompanyUserData() *Collaborator {
	return s.Role.Collaborator
}

// IsSubscriptionBlocked reports whether company-rooted access is gated.
func (s SessionState) IsSubscriptionBlocked() bool {
	return s.Role.IsCompanyRooted() && s.Subscription.ShouldBlock
}

// SessionListener observes state transitions.
type SessionListener func(state SessionState)

// SessionManager is the single entry point the application talks to. It
// composes the orchestrators and maintains the observable session state.
type SessionManager struct {
	creds    CredentialStore
	sessions SessionStore
	resolver RoleResolution
	signIn   *SignInOrchestrator
	signOut  *SignOutOrchestrator
	monitor  *SubscriptionMonitor
	logger   Logger
	now      func() time.Time

	mu        sync.RWMutex
	state     SessionState
	listeners []SessionListener

	monitorCancel context.CancelFunc
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

func WithSessionMonitor(monitor *SubscriptionMonitor) SessionManagerOption {
	return func(m *SessionManager) {
		m.monitor = monitor
	}
}

func WithSessionLogger(logger Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithSessionClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewSessionManager(
	creds CredentialStore,
	sessions SessionStore,
	resolver RoleResolution,
	signIn *SignInOrchestrator,
	signOut *SignOutOrchestrator,
	opts ...SessionManagerOption,
) *SessionManager {
	m := &SessionManager{
		creds:    creds,
		sessions: sessions,
		resolver: resolver,
		signIn:   signIn,
		signOut:  signOut,
		logger:   defLogger{},
		now:      time.Now,
		state:    SessionState{Loading: true},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// State returns the current snapshot.
func (m *SessionManager) State() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnChange registers a listener invoked after every state transition.
func (m *SessionManager) OnChange(listener SessionListener) {
	if listener == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	m.mu.Unlock()
}

func (m *SessionManager) setState(next SessionState) {
	m.mu.Lock()
	m.state = next
	listeners := make([]SessionListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, listener := range listeners {
		listener(next)
	}
}

// Restore rebuilds the session state from the local store, refreshing the
// token pair when the stored session is stale. Loading clears once role
// resolution has run, even if restoration found nothing.
func (m *SessionManager) Restore(ctx context.Context) SessionState {
	session := m.sessions.Get()

	if session != nil && !session.Valid(m.now()) && session.RefreshToken != "" {
		refreshed, err := m.creds.RefreshSession(ctx, session.RefreshToken)
		if err != nil {
			m.logger.Warn("session refresh failed during restore: %v", err)
			if IsRefreshTokenError(err) {
				m.sessions.Clear()
				session = nil
			}
		} else {
			session = refreshed
			m.sessions.Set(session)
		}
	}

	if session == nil || session.User == nil {
		next := SessionState{Loading: false}
		m.setState(next)
		return next
	}

	role := m.resolver.DetermineUserRole(ctx, session.User.Identity())

	next := SessionState{
		User:                session.User,
		Session:             session,
		Loading:             false,
		Role:                role,
		NeedsPasswordChange: role.NeedsPasswordChange,
	}
	m.setState(next)
	m.startMonitor(role)

	return next
}

// SignIn runs the orchestrator and folds the outcome into the state.
func (m *SessionManager) SignIn(ctx context.Context, req SignInRequest) (SessionState, error) {
	result, err := m.signIn.SignIn(ctx, req)
	if err != nil {
		return m.State(), err
	}

	next := SessionState{
		User:                result.User,
		Session:             result.Session,
		Loading:             false,
		Role:                result.Role,
		NeedsPasswordChange: result.NeedsPasswordChange,
		Warning:             result.Warning,
	}
	m.setState(next)
	m.startMonitor(result.Role)

	return next, nil
}

// SignUp registers a new student account and folds the fresh session into
// the state. Producer and company identities are provisioned out of band,
// so sign-up never takes a role hint.
func (m *SessionManager) SignUp(ctx context.Context, email, password string, metadata map[string]any) (SessionState, error) {
	if err := ValidateSignInInput(email, password); err != nil {
		return m.State(), err
	}
	if err := ValidatePassword(password); err != nil {
		return m.State(), err
	}

	session, err := m.creds.SignUp(ctx, email, password, metadata)
	if err != nil {
		if IsNetworkError(err) {
			return m.State(), ErrConnection
		}
		return m.State(), err
	}

	m.sessions.Set(session)

	next := SessionState{Loading: false}
	if session.User != nil {
		role := m.resolver.DetermineUserRole(ctx, session.User.Identity())
		next = SessionState{
			User:                session.User,
			Session:             session,
			Loading:             false,
			Role:                role,
			NeedsPasswordChange: role.NeedsPasswordChange,
		}
	}
	m.setState(next)
	if next.User != nil {
		m.startMonitor(next.Role)
	}

	return next, nil
}

// SignOut delegates to the orchestrator and resets the state. The error is
// always nil, matching the orchestrator's contract.
func (m *SessionManager) SignOut(ctx context.Context) error {
	m.stopMonitor()
	if _, err := m.signOut.SignOut(ctx); err != nil {
		return err
	}
	m.setState(SessionState{Loading: false})
	return nil
}

// ChangePassword updates the credential and re-resolves the role so gating
// flags like needsPasswordChange clear immediately.
func (m *SessionManager) ChangePassword(ctx context.Context, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	session := m.sessions.Get()
	if session == nil || session.User == nil {
		return ErrUnableToFindSession
	}

	if _, err := m.creds.UpdateUser(ctx, session.AccessToken, UserAttributes{Password: newPassword}); err != nil {
		return err
	}

	role := m.resolver.RefreshUserRole(ctx, session.User.Identity())

	m.mu.Lock()
	m.state.Role = role
	m.state.NeedsPasswordChange = role.NeedsPasswordChange
	next := m.state
	listeners := make([]SessionListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, listener := range listeners {
		listener(next)
	}

	return nil
}

// ResetPassword triggers the email flow. The response is intentionally
// identical whether or not the email exists.
func (m *SessionManager) ResetPassword(ctx context.Context, email, redirectTo string) error {
	if err := m.creds.ResetPasswordForEmail(ctx, email, redirectTo); err != nil {
		if IsNetworkError(err) {
			return ErrConnection
		}
		m.logger.Warn("password reset request failed: %v", err)
	}
	return nil
}

// HandleTransportError is the safety net for errors bubbling out of remote
// calls made by other layers. Refresh-token failures force a local teardown
// so the user is not stuck with a dead session.
func (m *SessionManager) HandleTransportError(ctx context.Context, err error) {
	if err == nil {
		return
	}

	if IsRefreshTokenError(err) {
		m.logger.Warn("refresh token rejected, forcing local sign out: %v", err)
		m.stopMonitor()
		m.sessions.Clear()
		m.setState(SessionState{Loading: false})
		return
	}

	if IsNetworkError(err) {
		// Transient transport failures keep the local session. The next
		// successful call confirms it is still alive.
		m.logger.Debug("transport error tolerated: %v", err)
	}
}

// startMonitor begins the periodic subscription check for company owner
// sessions. Collaborators get their company's subscription verdict stamped
// into RoleData at resolution time and do not poll billing themselves.
func (m *SessionManager) startMonitor(role RoleData) {
	m.stopMonitor()

	if m.monitor == nil || role.Role != RoleCompany {
		return
	}

	companyID, ok := role.CompanyID()
	if !ok {
		return
	}
	id, err := parseUUID(companyID)
	if err != nil {
		m.logger.Error("bad company id %q: %v", companyID, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.monitorCancel = cancel
	m.mu.Unlock()

	go m.monitor.Run(ctx, id, func(state SubscriptionState) {
		m.mu.Lock()
		m.state.Subscription = state
		next := m.state
		listeners := make([]SessionListener, len(m.listeners))
		copy(listeners, m.listeners)
		m.mu.Unlock()

		for _, listener := range listeners {
			listener(next)
		}
	})
}

func (m *SessionManager) stopMonitor() {
	m.mu.Lock()
	cancel := m.monitorCancel
	m.monitorCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
