package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActivationRequest carries everything an invitation link can hand us: the
// one-time token, the invited email, and the raw URL fragment.
type ActivationRequest struct {
	Token    string
	Email    string
	Fragment string
}

// sessionStrategy is one way of turning an activation link into a session.
// Strategies run in order until one succeeds; all failures are collected.
type sessionStrategy struct {
	name    string
	resolve func(ctx context.Context, req ActivationRequest) (*AuthSession, error)
}

// ActivationFlow turns an invitation or recovery link into an authenticated
// identity with a password set, optionally completing a collaborator's
// profile on the way.
type ActivationFlow struct {
	creds      CredentialStore
	sessions   SessionStore
	resolver   RoleResolution
	repos      RepositoryManager
	machine    AccountStateMachine
	sink       ActivitySink
	logger     Logger
	recheckGap time.Duration
	strategies []sessionStrategy
}

// ActivationOption configures an ActivationFlow.
type ActivationOption func(*ActivationFlow)

func WithActivationActivitySink(sink ActivitySink) ActivationOption {
	return func(a *ActivationFlow) {
		a.sink = normalizeActivitySink(sink)
	}
}

func WithActivationLogger(logger Logger) ActivationOption {
	return func(a *ActivationFlow) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithActivationStateMachine overrides the state machine used to move
// pending accounts into the active state.
func WithActivationStateMachine(machine AccountStateMachine) ActivationOption {
	return func(a *ActivationFlow) {
		if machine != nil {
			a.machine = machine
		}
	}
}

// WithActivationRecheckGap shortens the ambient-session recheck delay in
// tests.
func WithActivationRecheckGap(d time.Duration) ActivationOption {
	return func(a *ActivationFlow) {
		if d >= 0 {
			a.recheckGap = d
		}
	}
}

func NewActivationFlow(
	creds CredentialStore,
	sessions SessionStore,
	resolver RoleResolution,
	repos RepositoryManager,
	opts ...ActivationOption,
) *ActivationFlow {
	a := &ActivationFlow{
		creds:      creds,
		sessions:   sessions,
		resolver:   resolver,
		repos:      repos,
		sink:       noopActivitySink{},
		logger:     defLogger{},
		recheckGap: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.machine == nil {
		a.machine = NewAccountStateMachine(repos.Collaborators(),
			WithStateMachineActivitySink(a.sink),
			WithStateMachineLogger(a.logger),
		)
	}

	a.strategies = []sessionStrategy{
		{name: "otp_verification", resolve: a.verifyInviteToken},
		{name: "fragment_extractor", resolve: a.extractFromFragment},
		{name: "ambient_recheck", resolve: a.recheckAmbientSession},
		{name: "manual_fragment_parse", resolve: a.parseFragmentTokens},
	}

	return a
}

// ResolveSession tries every strategy in order and returns the first
// session obtained. When all of them fail the errors are aggregated into a
// single activation error so the user sees one message and operators see
// every cause.
func (a *ActivationFlow) ResolveSession(ctx context.Context, req ActivationRequest) (*AuthSession, error) {
	var failures []string

	for _, strategy := range a.strategies {
		session, err := strategy.resolve(ctx, req)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", strategy.name, err))
			continue
		}
		if session != nil && session.User != nil {
			a.sessions.Set(session)
			return session, nil
		}
		failures = append(failures, strategy.name+": no session")
	}

	clone := ErrActivationTokenInvalid.Clone()
	return nil, clone.WithMetadata(map[string]any{
		"attempts": failures,
	})
}

func (a *ActivationFlow) verifyInviteToken(ctx context.Context, req ActivationRequest) (*AuthSession, error) {
	if req.Token == "" {
		return nil, ErrTokenMalformed
	}
	return a.creds.VerifyOTP(ctx, VerifyOTPParams{
		Type:  OTPTypeInvite,
		Token: req.Token,
		Email: req.Email,
	})
}

func (a *ActivationFlow) extractFromFragment(ctx context.Context, req ActivationRequest) (*AuthSession, error) {
	extractor, ok := a.creds.(FragmentSessionExtractor)
	if !ok {
		return nil, ErrTokenMalformed
	}
	if req.Fragment == "" {
		return nil, ErrTokenMalformed
	}
	return extractor.SessionFromFragment(ctx, req.Fragment)
}

// recheckAmbientSession covers backends that process the URL fragment
// asynchronously: by the time we re-look, the session may already be there.
func (a *ActivationFlow) recheckAmbientSession(ctx context.Context, _ ActivationRequest) (*AuthSession, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.recheckGap):
	}

	if session := a.sessions.Get(); session != nil && session.User != nil {
		return session, nil
	}
	return nil, ErrUnableToFindSession
}

// parseFragmentTokens is the last resort: pull the raw token pair out of
// the URL fragment and establish the session explicitly.
func (a *ActivationFlow) parseFragmentTokens(ctx context.Context, req ActivationRequest) (*AuthSession, error) {
	access, refresh, err := ParseFragmentTokens(req.Fragment)
	if err != nil {
		return nil, err
	}
	return a.creds.SetSession(ctx, access, refresh)
}

// ParseFragmentTokens extracts access_token and refresh_token from a URL
// fragment shaped like a query string.
func ParseFragmentTokens(fragment string) (access, refresh string, err error) {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return "", "", ErrTokenMalformed
	}

	values, perr := url.ParseQuery(fragment)
	if perr != nil {
		return "", "", ErrTokenMalformed
	}

	access = values.Get("access_token")
	refresh = values.Get("refresh_token")
	if access == "" || refresh == "" {
		return "", "", ErrTokenMalformed
	}

	return access, refresh, nil
}

// ActivationState tells the UI which fields the submission form must show.
type ActivationState struct {
	User                *AuthUser
	Collaborator        *Collaborator
	RequiresProfile     bool
	NeedsPasswordChange bool
}

// Inspect looks up the collaborator behind the authenticated identity and
// reports whether the profile completion step applies.
func (a *ActivationFlow) Inspect(ctx context.Context, session *AuthSession) (*ActivationState, error) {
	if session == nil || session.User == nil {
		return nil, ErrUnableToFindSession
	}

	state := &ActivationState{User: session.User}

	collaborator, err := a.repos.Collaborators().FindActiveByAuthUser(ctx, session.User.ID)
	if err == nil {
		state.Collaborator = collaborator
		state.RequiresProfile = collaborator.NeedsCompleteRegistration
		state.NeedsPasswordChange = collaborator.NeedsPasswordChange
	}

	return state, nil
}

// ActivationSubmission is the activation form payload.
type ActivationSubmission struct {
	Password        string
	ConfirmPassword string
	Profile         *ProfileCompletion
}

// ActivationResult reports where the activated user should land.
type ActivationResult struct {
	User     *AuthUser
	Role     Role
	Redirect string
}

// Submit sets the password, completes the collaborator profile when
// required, re-derives the role and picks the landing route.
func (a *ActivationFlow) Submit(ctx context.Context, session *AuthSession, sub ActivationSubmission) (*ActivationResult, error) {
	if session == nil || session.User == nil {
		return nil, ErrUnableToFindSession
	}

	if err := ValidatePassword(sub.Password); err != nil {
		return nil, err
	}
	if sub.Password != sub.ConfirmPassword {
		clone := ErrNoEmptyString.Clone()
		clone.Message = "as senhas não coincidem"
		return nil, clone.WithTextCode(TextCodeWeakPassword)
	}

	state, err := a.Inspect(ctx, session)
	if err != nil {
		return nil, err
	}

	if state.RequiresProfile {
		if sub.Profile == nil {
			return nil, ErrUnableToParseData
		}
		if verr := sub.Profile.Validate(time.Now()); verr != nil {
			return nil, verr
		}
	}

	user, err := a.creds.UpdateUser(ctx, session.AccessToken, UserAttributes{Password: sub.Password})
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = session.User
	}

	if state.RequiresProfile {
		if err := a.completeProfile(ctx, state.Collaborator, session.User.ID, sub.Profile); err != nil {
			return nil, err
		}
	}

	role := a.deriveRole(ctx, session)

	redirect, err := a.redirectForRole(ctx, session.User.ID, role)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, a.sink, a.logger, ActivityEvent{
		EventType: ActivityEventPasswordChange,
		UserID:    session.User.ID.String(),
		Email:     session.User.Email,
		Severity:  SeverityInfo,
		Metadata:  map[string]any{"flow": "activation"},
	})

	return &ActivationResult{User: user, Role: role, Redirect: redirect}, nil
}

func (a *ActivationFlow) completeProfile(ctx context.Context, collaborator *Collaborator, authUserID uuid.UUID, profile *ProfileCompletion) error {
	phone := profile.Phone
	if phone != "" {
		if normalized, err := NormalizePhone(phone, "BR"); err == nil {
			phone = normalized
		}
	}

	now := time.Now()
	collaborator.AuthUserID = &authUserID
	collaborator.Phone = phone
	collaborator.BirthDate = profile.BirthDate
	collaborator.Gender = profile.Gender
	collaborator.State = profile.State
	collaborator.City = profile.City
	collaborator.Country = profile.Country
	collaborator.NeedsPasswordChange = false
	collaborator.NeedsCompleteRegistration = false
	collaborator.ActivatedAt = &now
	collaborator.UpdatedAt = &now

	if err := a.repos.Collaborators().CompleteRegistration(ctx, collaborator); err != nil {
		return err
	}

	actor := ActorRef{ID: authUserID.String(), Type: "user"}
	_, err := a.machine.Transition(ctx, actor, collaborator, AccountStatusActive,
		WithTransitionReason("account_activation"),
	)
	return err
}

// deriveRole prefers the role stamped in credential metadata and falls back
// to the resolver.
func (a *ActivationFlow) deriveRole(ctx context.Context, session *AuthSession) Role {
	if role, ok := session.User.RoleMetadata(); ok {
		return role
	}
	data := a.resolver.RefreshUserRole(ctx, session.User.Identity())
	return data.Role
}

// redirectForRole picks the landing route. A company-role redirect first
// verifies the company record still exists and is active so the user does
// not land on a dashboard for a deleted tenant.
func (a *ActivationFlow) redirectForRole(ctx context.Context, authUserID uuid.UUID, role Role) (string, error) {
	switch role {
	case RoleProducer:
		return "/producer/dashboard", nil
	case RoleCompany:
		company, err := a.repos.Companies().FindByAuthUser(ctx, authUserID)
		if err != nil || company == nil || !company.IsActive {
			return "/login", nil
		}
		return "/company/dashboard", nil
	case RoleCollaborator:
		return "/learning", nil
	default:
		return "/learning", nil
	}
}
