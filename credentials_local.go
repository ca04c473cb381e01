package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LocalAuthUser is the credential row for the self-hosted backend.
type LocalAuthUser struct {
	bun.BaseModel    `bun:"table:auth_users,alias:au"`
	ID               uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email            string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash     string         `bun:"password_hash,notnull" json:"-"`
	EmailConfirmedAt *time.Time     `bun:"email_confirmed_at,nullzero" json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `bun:"last_sign_in_at,nullzero" json:"last_sign_in_at,omitempty"`
	Metadata         map[string]any `bun:"metadata" json:"metadata,omitempty"`
	RefreshToken     string         `bun:"refresh_token" json:"-"`
	CreatedAt        *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

func (u *LocalAuthUser) asAuthUser() *AuthUser {
	return &AuthUser{
		ID:               u.ID,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		LastSignInAt:     u.LastSignInAt,
		CreatedAt:        u.CreatedAt,
		Metadata:         u.Metadata,
	}
}

// OneTimeToken backs invitation and recovery links for the local backend.
// The id is derived deterministically from the email so resent invites
// replace the previous row.
type OneTimeToken struct {
	bun.BaseModel `bun:"table:one_time_tokens,alias:ott"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull" json:"-"`
	Type          OTPType    `bun:"token_type,notnull" json:"token_type,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// LocalCredentialStore is a CredentialStore backed by the application's own
// database: bcrypt hashes at rest, HS256 session tokens, rotating refresh
// tokens. It exists so deployments without the hosted backend still get the
// full sign-in semantics.
type LocalCredentialStore struct {
	db     *bun.DB
	tokens *TokenServiceImpl
	logger Logger
	now    func() time.Time
}

var _ CredentialStore = (*LocalCredentialStore)(nil)

// LocalCredentialOption configures a LocalCredentialStore.
type LocalCredentialOption func(*LocalCredentialStore)

func WithLocalCredentialLogger(logger Logger) LocalCredentialOption {
	return func(s *LocalCredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithLocalCredentialClock(now func() time.Time) LocalCredentialOption {
	return func(s *LocalCredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewLocalCredentialStore(db *bun.DB, tokens *TokenServiceImpl, opts ...LocalCredentialOption) *LocalCredentialStore {
	s := &LocalCredentialStore{
		db:     db,
		tokens: tokens,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *LocalCredentialStore) findByEmail(ctx context.Context, email string) (*LocalAuthUser, error) {
	record := &LocalAuthUser{}
	err := s.db.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = LOWER(?)", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *LocalCredentialStore) issueSession(ctx context.Context, record *LocalAuthUser) (*AuthSession, error) {
	user := record.asAuthUser()

	role := RoleStudent
	if stamped, ok := user.RoleMetadata(); ok {
		role = stamped
	}

	access, err := s.tokens.Generate(ctx, user.Identity(), role)
	if err != nil {
		return nil, err
	}

	refresh := uuid.NewString()
	now := s.now()

	_, err = s.db.NewUpdate().
		Model((*LocalAuthUser)(nil)).
		Set("refresh_token = ?", refresh).
		Set("last_sign_in_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", record.ID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	user.LastSignInAt = &now
	expires := now.Add(s.tokens.tokenDefaults().ttl)

	return &AuthSession{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    &expires,
		User:         user,
	}, nil
}

func (s *LocalCredentialStore) SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error) {
	record, err := s.findByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) || errors.Is(err, ErrIdentityNotFound) {
			// Indistinguishable from a wrong password on purpose.
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := ComparePasswordAndHash(password, record.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(ctx, record)
}

func (s *LocalCredentialStore) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*AuthSession, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	record := &LocalAuthUser{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Metadata:     metadata,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create auth user")
	}

	return s.issueSession(ctx, record)
}

func (s *LocalCredentialStore) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.Validate(accessToken)
	if err != nil {
		// A dead token has nothing to revoke server side.
		return nil
	}

	id, err := parseUUID(claims.UserID())
	if err != nil {
		return nil
	}

	_, err = s.db.NewUpdate().
		Model((*LocalAuthUser)(nil)).
		Set("refresh_token = ''").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *LocalCredentialStore) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*AuthUser, error) {
	claims, err := s.tokens.Validate(accessToken)
	if err != nil {
		return nil, err
	}

	id, err := parseUUID(claims.UserID())
	if err != nil {
		return nil, err
	}

	record := &LocalAuthUser{}
	if err := s.db.NewSelect().Model(record).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, ErrIdentityNotFound
	}

	now := s.now()
	query := s.db.NewUpdate().
		Model((*LocalAuthUser)(nil)).
		Set("updated_at = ?", now).
		Where("id = ?", id)

	if attrs.Password != "" {
		hash, herr := HashPassword(attrs.Password)
		if herr != nil {
			return nil, herr
		}
		record.PasswordHash = hash
		query = query.Set("password_hash = ?", hash)
	}

	if attrs.Email != "" {
		record.Email = attrs.Email
		query = query.Set("email = ?", attrs.Email)
	}

	if attrs.Metadata != nil {
		if record.Metadata == nil {
			record.Metadata = map[string]any{}
		}
		for k, v := range attrs.Metadata {
			record.Metadata[k] = v
		}
		query = query.Set("metadata = ?", record.Metadata)
	}

	if _, err := query.Exec(ctx); err != nil {
		return nil, err
	}

	return record.asAuthUser(), nil
}

// ResetPasswordForEmail mints a recovery one-time token. Delivery is out of
// scope here; the token row is what the emailer picks up. Unknown emails
// succeed silently to avoid account enumeration.
func (s *LocalCredentialStore) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	if _, err := s.findByEmail(ctx, email); err != nil {
		s.logger.Debug("password reset for unknown email suppressed")
		return nil
	}

	_, err := s.CreateOneTimeToken(ctx, email, OTPTypeRecovery, time.Hour)
	if err != nil {
		return err
	}
	_ = redirectTo
	return nil
}

func (s *LocalCredentialStore) GetUser(ctx context.Context, accessToken string) (*AuthUser, error) {
	claims, err := s.tokens.Validate(accessToken)
	if err != nil {
		return nil, err
	}

	id, err := parseUUID(claims.UserID())
	if err != nil {
		return nil, err
	}

	record := &LocalAuthUser{}
	if err := s.db.NewSelect().Model(record).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, ErrIdentityNotFound
	}

	return record.asAuthUser(), nil
}

func (s *LocalCredentialStore) RefreshSession(ctx context.Context, refreshToken string) (*AuthSession, error) {
	if refreshToken == "" {
		return nil, goerrors.New("invalid refresh token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	record := &LocalAuthUser{}
	err := s.db.NewSelect().
		Model(record).
		Where("refresh_token = ?", refreshToken).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, goerrors.New("invalid refresh token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return s.issueSession(ctx, record)
}

// CreateOneTimeToken mints an invite or recovery token and returns the raw
// value exactly once. Only its hash is stored.
func (s *LocalCredentialStore) CreateOneTimeToken(ctx context.Context, email string, tokenType OTPType, ttl time.Duration) (string, error) {
	id, err := InviteTokenID(email)
	if err != nil {
		return "", err
	}

	raw := uuid.NewString()
	hash, err := HashPassword(raw)
	if err != nil {
		return "", err
	}

	now := s.now()
	record := &OneTimeToken{
		ID:        id,
		Email:     NormalizeThrottleKey(email),
		TokenHash: hash,
		Type:      tokenType,
		ExpiresAt: now.Add(ttl),
		CreatedAt: &now,
	}

	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("token_hash = EXCLUDED.token_hash").
		Set("token_type = EXCLUDED.token_type").
		Set("expires_at = EXCLUDED.expires_at").
		Set("used_at = NULL").
		Exec(ctx)
	if err != nil {
		return "", err
	}

	return raw, nil
}

func (s *LocalCredentialStore) VerifyOTP(ctx context.Context, params VerifyOTPParams) (*AuthSession, error) {
	if params.Token == "" || params.Email == "" {
		return nil, ErrActivationTokenInvalid
	}

	id, err := InviteTokenID(params.Email)
	if err != nil {
		return nil, ErrActivationTokenInvalid
	}

	record := &OneTimeToken{}
	if err := s.db.NewSelect().Model(record).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, ErrActivationTokenInvalid
	}

	now := s.now()
	if record.UsedAt != nil || record.Type != params.Type || now.After(record.ExpiresAt) {
		return nil, ErrActivationTokenInvalid
	}

	if err := ComparePasswordAndHash(params.Token, record.TokenHash); err != nil {
		return nil, ErrActivationTokenInvalid
	}

	if _, err := s.db.NewUpdate().
		Model((*OneTimeToken)(nil)).
		Set("used_at = ?", now).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		s.logger.Warn("one time token burn failed: %v", err)
	}

	user, err := s.findByEmail(ctx, params.Email)
	if err != nil {
		// Invited identities may not exist yet; create a shell account
		// with a random password so the activation flow can set one.
		if !errors.Is(err, ErrIdentityNotFound) {
			return nil, err
		}
		user = &LocalAuthUser{
			ID:           uuid.New(),
			Email:        NormalizeThrottleKey(params.Email),
			PasswordHash: RandomPasswordHash(),
			CreatedAt:    &now,
		}
		if _, cerr := s.db.NewInsert().Model(user).Exec(ctx); cerr != nil {
			return nil, cerr
		}
	}

	if user.EmailConfirmedAt == nil {
		user.EmailConfirmedAt = &now
		if _, uerr := s.db.NewUpdate().
			Model((*LocalAuthUser)(nil)).
			Set("email_confirmed_at = ?", now).
			Where("id = ?", user.ID).
			Exec(ctx); uerr != nil {
			s.logger.Warn("email confirmation stamp failed: %v", uerr)
		}
	}

	return s.issueSession(ctx, user)
}

func (s *LocalCredentialStore) SetSession(ctx context.Context, accessToken, refreshToken string) (*AuthSession, error) {
	claims, err := s.tokens.Validate(accessToken)
	if err != nil {
		return nil, err
	}

	id, err := parseUUID(claims.UserID())
	if err != nil {
		return nil, err
	}

	record := &LocalAuthUser{}
	if err := s.db.NewSelect().Model(record).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, ErrIdentityNotFound
	}

	expires := claims.Expires()
	session := &AuthSession{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         record.asAuthUser(),
	}
	if !expires.IsZero() {
		session.ExpiresAt = &expires
	}

	return session, nil
}
