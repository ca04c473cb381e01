package auth

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// SignInRequest carries one sign-in attempt. RoleHint selects the producer
// or company path; leave it empty for the default flow.
type SignInRequest struct {
	Email    string
	Password string
	RoleHint Role
}

// SignInResult is the success side of a sign-in. Exactly one of result or
// error comes back from SignIn.
type SignInResult struct {
	User                *AuthUser
	Session             *AuthSession
	Role                RoleData
	NeedsPasswordChange bool
	// Warning carries the non blocking low-attempts notice that may have
	// been raised before this attempt succeeded.
	Warning string
}

// SignInOrchestrator sequences throttling, credential verification and role
// resolution. The ordering is fixed: throttle check, then the credential
// call, then role resolution, then audit.
type SignInOrchestrator struct {
	creds    CredentialStore
	throttle *LoginThrottle
	resolver RoleResolution
	repos    RepositoryManager
	remote   RemoteFunctions
	sessions SessionStore
	sink     ActivitySink
	logger   Logger
}

// SignInOption configures a SignInOrchestrator.
type SignInOption func(*SignInOrchestrator)

func WithSignInRemote(remote RemoteFunctions) SignInOption {
	return func(s *SignInOrchestrator) {
		s.remote = remote
	}
}

func WithSignInSessionStore(store SessionStore) SignInOption {
	return func(s *SignInOrchestrator) {
		if store != nil {
			s.sessions = store
		}
	}
}

func WithSignInActivitySink(sink ActivitySink) SignInOption {
	return func(s *SignInOrchestrator) {
		s.sink = normalizeActivitySink(sink)
	}
}

func WithSignInLogger(logger Logger) SignInOption {
	return func(s *SignInOrchestrator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSignInOrchestrator(
	creds CredentialStore,
	throttle *LoginThrottle,
	resolver RoleResolution,
	repos RepositoryManager,
	opts ...SignInOption,
) *SignInOrchestrator {
	s := &SignInOrchestrator{
		creds:    creds,
		throttle: throttle,
		resolver: resolver,
		repos:    repos,
		sessions: NewMemorySessionStore(),
		sink:     noopActivitySink{},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SignIn runs one attempt end to end. It never panics: unexpected failures
// are converted into a generic connection error after the attempt has been
// counted and audited.
func (s *SignInOrchestrator) SignIn(ctx context.Context, req SignInRequest) (result *SignInResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sign in recovered: %v", r)
			s.throttle.RecordFailedLogin(ctx, req.Email)
			s.auditFailure(ctx, req.Email, "internal_error", fmt.Sprintf("%v", r))
			result = nil
			err = ErrConnection
		}
	}()

	if verr := ValidateSignInInput(req.Email, req.Password); verr != nil {
		s.auditFailure(ctx, req.Email, "validation", verr.Error())
		return nil, verr
	}

	check := s.throttle.CheckLoginAttempts(ctx, req.Email)
	if !check.Allowed {
		s.auditFailure(ctx, req.Email, "account_locked", check.Message)
		clone := ErrAccountLocked.Clone()
		clone.Message = check.Message
		return nil, clone
	}
	warning := check.Message

	var session *AuthSession
	switch req.RoleHint {
	case RoleProducer:
		session, err = s.producerSignIn(ctx, req)
	case RoleCompany:
		session, err = s.companySignIn(ctx, req)
	default:
		session, err = s.creds.SignInWithPassword(ctx, req.Email, req.Password)
	}

	if err != nil {
		return nil, s.failAttempt(ctx, req.Email, err)
	}
	if session == nil || session.User == nil {
		return nil, s.failAttempt(ctx, req.Email, ErrUnableToFindSession)
	}

	s.throttle.RecordSuccessfulLogin(ctx, req.Email)
	s.sessions.Set(session)

	role := s.resolver.RefreshUserRole(ctx, session.User.Identity())

	s.auditSuccess(ctx, session.User, role.Role)

	return &SignInResult{
		User:                session.User,
		Session:             session,
		Role:                role,
		NeedsPasswordChange: role.NeedsPasswordChange,
		Warning:             warning,
	}, nil
}

// producerSignIn verifies the authenticated identity maps to an active
// producer row. Anything else is a hard access denial, not a credentials
// problem, and the freshly minted server session is torn down.
func (s *SignInOrchestrator) producerSignIn(ctx context.Context, req SignInRequest) (*AuthSession, error) {
	session, err := s.creds.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if session == nil || session.User == nil {
		return nil, ErrUnableToFindSession
	}

	if _, perr := s.repos.Producers().FindActiveByAuthUser(ctx, session.User.ID); perr != nil {
		if serr := s.creds.SignOut(ctx, session.AccessToken); serr != nil {
			s.logger.Warn("producer teardown sign out failed: %v", serr)
		}
		s.sessions.Clear()
		s.resolver.Invalidate(session.User.ID.String())
		return nil, ErrAccessDenied
	}

	s.stampRoleMetadata(ctx, session, RoleProducer)
	return session, nil
}

// companySignIn adds the bootstrap fallback: a pre-existing company row
// without an auth identity gets one provisioned on first login, then the
// sign in is retried once. The fallback trusts the company row alone, it
// has no secondary proof that the caller owns the company.
func (s *SignInOrchestrator) companySignIn(ctx context.Context, req SignInRequest) (*AuthSession, error) {
	session, err := s.creds.SignInWithPassword(ctx, req.Email, req.Password)

	if err != nil && IsInvalidCredentialsError(err) && s.remote != nil {
		company, ferr := s.repos.Companies().FindUnlinkedByEmail(ctx, req.Email)
		if ferr != nil || company == nil {
			return nil, err
		}

		user, perr := s.remote.ProvisionCompanyAuthUser(ctx, company.ID, req.Email, req.Password)
		if perr != nil {
			s.logger.Error("company bootstrap provisioning failed for %s: %v", company.ID, perr)
			return nil, err
		}

		if lerr := s.repos.Companies().LinkAuthUser(ctx, company.ID, user.ID); lerr != nil {
			s.logger.Error("company bootstrap link failed for %s: %v", company.ID, lerr)
			return nil, err
		}

		session, err = s.creds.SignInWithPassword(ctx, req.Email, req.Password)
	}

	if err != nil {
		return nil, err
	}
	if session == nil || session.User == nil {
		return nil, ErrUnableToFindSession
	}

	// Only stamp the company role when the identity really is linked to a
	// company row; otherwise the default resolution decides.
	if _, cerr := s.repos.Companies().FindByAuthUser(ctx, session.User.ID); cerr == nil {
		s.stampRoleMetadata(ctx, session, RoleCompany)
		if uerr := s.repos.Profiles().UpsertRole(ctx, session.User.ID, session.User.Email, RoleCompany); uerr != nil {
			s.logger.Warn("company profile upsert failed: %v", uerr)
		}
	}

	return session, nil
}

// stampRoleMetadata writes the role into the credential store metadata when
// it disagrees with what is stored. Best effort.
func (s *SignInOrchestrator) stampRoleMetadata(ctx context.Context, session *AuthSession, role Role) {
	if stored, ok := session.User.RoleMetadata(); ok && stored == role {
		return
	}

	updated, err := s.creds.UpdateUser(ctx, session.AccessToken, UserAttributes{
		Metadata: map[string]any{"role": string(role)},
	})
	if err != nil {
		s.logger.Warn("role metadata update failed for %s: %v", session.User.ID, err)
		return
	}
	if updated != nil {
		session.User = updated
	}
}

// failAttempt counts the failure, enriches the user facing message with the
// remaining attempts or lockout notice, and audits the outcome.
func (s *SignInOrchestrator) failAttempt(ctx context.Context, email string, cause error) error {
	check := s.throttle.RecordFailedLogin(ctx, email)

	base := TranslateAuthError(cause)

	var richErr *goerrors.Error
	if goerrors.As(cause, &richErr) && richErr.TextCode == TextCodeAccessDenied {
		s.auditFailure(ctx, email, "access_denied", base)
		return cause
	}

	clone := ErrInvalidCredentials.Clone()
	if IsNetworkError(cause) {
		clone = ErrConnection.Clone()
	}

	if !check.Allowed && check.LockedUntil != nil {
		clone.Message = base + " " + check.Message
	} else if check.Message != "" {
		clone.Message = base + " " + check.Message
	} else {
		clone.Message = RemainingAttemptsMessage(base, check.RemainingAttempts)
	}
	clone.Source = cause

	s.auditFailure(ctx, email, "invalid_credentials", clone.Message)
	return clone.WithMetadata(map[string]any{
		"remaining_attempts": check.RemainingAttempts,
		"locked":             !check.Allowed,
	})
}

func (s *SignInOrchestrator) auditFailure(ctx context.Context, email, reason, detail string) {
	recordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Email:     email,
		Severity:  SeverityWarning,
		Metadata: map[string]any{
			"reason": reason,
			"detail": detail,
		},
	})
}

// auditSuccess records the sanitized identity snapshot. Passwords and tokens
// never reach the audit log.
func (s *SignInOrchestrator) auditSuccess(ctx context.Context, user *AuthUser, role Role) {
	metadata := map[string]any{"role": string(role)}
	if user.LastSignInAt != nil {
		metadata["last_sign_in_at"] = user.LastSignInAt
	}
	if user.CreatedAt != nil {
		metadata["created_at"] = user.CreatedAt
	}

	recordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID.String(),
		Email:     user.Email,
		Severity:  SeverityInfo,
		Metadata:  metadata,
	})
}
