package auth

import (
	"context"
	"sync"
	"time"
)

// SignOutPath labels which branch a sign-out resolved through. It is only
// used for audit metadata.
type SignOutPath string

const (
	SignOutPathServer        SignOutPath = "server"
	SignOutPathAlreadyOut    SignOutPath = "already_logged_out"
	SignOutPathInvalidLocal  SignOutPath = "invalid_session_local_only"
	SignOutPathServerIgnored SignOutPath = "server_error_ignored"
	SignOutPathDuplicate     SignOutPath = "duplicate_call"
)

// SignOutOrchestrator tears down a session. Local state is cleared on every
// path before any server call, and the caller always gets a nil error. A
// failed server logout must never strand the user in a half signed-in UI.
type SignOutOrchestrator struct {
	creds    CredentialStore
	sessions SessionStore
	resolver RoleResolution
	sink     ActivitySink
	logger   Logger
	now      func() time.Time

	mu       sync.Mutex
	inFlight bool
}

// SignOutOption configures a SignOutOrchestrator.
type SignOutOption func(*SignOutOrchestrator)

func WithSignOutActivitySink(sink ActivitySink) SignOutOption {
	return func(s *SignOutOrchestrator) {
		s.sink = normalizeActivitySink(sink)
	}
}

func WithSignOutLogger(logger Logger) SignOutOption {
	return func(s *SignOutOrchestrator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSignOutClock(now func() time.Time) SignOutOption {
	return func(s *SignOutOrchestrator) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSignOutOrchestrator(
	creds CredentialStore,
	sessions SessionStore,
	resolver RoleResolution,
	opts ...SignOutOption,
) *SignOutOrchestrator {
	s := &SignOutOrchestrator{
		creds:    creds,
		sessions: sessions,
		resolver: resolver,
		sink:     noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SignOut clears the session. The returned error is always nil; the path
// describes what actually happened. Concurrent calls collapse into one
// effective logout, late callers return immediately with
// SignOutPathDuplicate while the first call keeps running.
func (s *SignOutOrchestrator) SignOut(ctx context.Context) (SignOutPath, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return SignOutPathDuplicate, nil
	}
	s.inFlight = true
	s.mu.Unlock()

	path := s.execute(ctx)

	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()

	return path, nil
}

func (s *SignOutOrchestrator) execute(ctx context.Context) (path SignOutPath) {
	// Audit context has to be captured before the local state is wiped.
	session := s.sessions.Get()

	// Local teardown comes first, unconditionally.
	s.sessions.Clear()
	if s.resolver != nil && session != nil && session.User != nil {
		s.resolver.Invalidate(session.User.ID.String())
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sign out recovered: %v", r)
			path = SignOutPathServerIgnored
		}
		s.auditLogout(ctx, session, path)
	}()

	if session == nil {
		return SignOutPathAlreadyOut
	}

	// Sessions already known invalid are not worth a server round trip
	// that would only produce a spurious 403.
	if !session.Valid(s.now()) {
		return SignOutPathInvalidLocal
	}

	if err := s.creds.SignOut(ctx, session.AccessToken); err != nil {
		if IsNetworkError(err) {
			s.logger.Warn("server logout unreachable, local state already cleared: %v", err)
		} else {
			s.logger.Warn("server logout failed, local state already cleared: %v", err)
		}
		return SignOutPathServerIgnored
	}

	return SignOutPathServer
}

func (s *SignOutOrchestrator) auditLogout(ctx context.Context, session *AuthSession, path SignOutPath) {
	event := ActivityEvent{
		EventType: ActivityEventLogout,
		Severity:  SeverityInfo,
		Metadata:  map[string]any{"path": string(path)},
	}

	if session != nil && session.User != nil {
		event.UserID = session.User.ID.String()
		event.Email = session.User.Email
	}

	recordActivity(ctx, s.sink, s.logger, event)
}
