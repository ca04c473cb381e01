package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// timeNow is swapped in tests that pin subscription windows.
var timeNow = time.Now

// roleCheck is one rung of the resolution ladder. Checks run in declaration
// order and the first one that returns data wins.
type roleCheck struct {
	role   Role
	lookup func(ctx context.Context, r *RoleResolver, id uuid.UUID, email string) (*RoleData, error)
}

// RoleResolver determines the effective tenant role for an identity by
// probing the tenant tables in fixed precedence order. Results are cached
// with a short TTL so repeated checks within a session stay cheap.
type RoleResolver struct {
	repos  RepositoryManager
	cache  RoleCache
	sink   ActivitySink
	logger Logger
	checks []roleCheck
}

// ResolverOption configures a RoleResolver.
type ResolverOption func(*RoleResolver)

func WithResolverCache(cache RoleCache) ResolverOption {
	return func(r *RoleResolver) {
		if cache != nil {
			r.cache = cache
		}
	}
}

func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *RoleResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithResolverActivitySink(sink ActivitySink) ResolverOption {
	return func(r *RoleResolver) {
		r.sink = normalizeActivitySink(sink)
	}
}

func NewRoleResolver(repos RepositoryManager, opts ...ResolverOption) *RoleResolver {
	r := &RoleResolver{
		repos:  repos,
		cache:  NewMemoryRoleCache(),
		sink:   noopActivitySink{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(r)
	}

	r.checks = []roleCheck{
		{role: RoleProducer, lookup: producerCheck},
		{role: RoleCompany, lookup: companyCheck},
		{role: RoleCollaborator, lookup: collaboratorCheck},
		{role: RoleStudent, lookup: profileFallbackCheck},
	}

	return r
}

var _ RoleResolution = (*RoleResolver)(nil)

// DetermineUserRole resolves the identity's role, serving from cache when a
// fresh entry exists. It never returns an error: lookups that fail degrade
// to the student role so the session can still be established.
func (r *RoleResolver) DetermineUserRole(ctx context.Context, identity Identity) RoleData {
	if identity == nil || identity.ID() == "" {
		return studentRoleData()
	}

	if data, ok := r.cache.Get(identity.ID()); ok {
		return data
	}

	return r.resolve(ctx, identity)
}

// RefreshUserRole bypasses the cache and re-resolves from the tenant tables.
func (r *RoleResolver) RefreshUserRole(ctx context.Context, identity Identity) RoleData {
	if identity == nil || identity.ID() == "" {
		return studentRoleData()
	}

	r.cache.Invalidate(identity.ID())
	return r.resolve(ctx, identity)
}

// Invalidate drops the cached role for one identity.
func (r *RoleResolver) Invalidate(identityID string) {
	r.cache.Invalidate(identityID)
}

func (r *RoleResolver) resolve(ctx context.Context, identity Identity) RoleData {
	id, err := identity.UserUUID()
	if err != nil {
		r.logger.Error("role resolution: bad identity id %q: %v", identity.ID(), err)
		return studentRoleData()
	}

	data := studentRoleData()

	for _, check := range r.checks {
		found, err := check.lookup(ctx, r, id, identity.Email())
		if err != nil {
			if goerrors.IsNotFound(err) {
				continue
			}
			r.logger.Error("role resolution: %s check failed: %v", check.role, err)
			continue
		}
		if found != nil {
			data = *found
			break
		}
	}

	r.cache.Set(identity.ID(), data)
	r.persistProfileRole(ctx, id, identity.Email(), data.Role)

	return data
}

// persistProfileRole mirrors the resolved role into the profiles table so
// out of band consumers see the same answer. Failures only get logged.
func (r *RoleResolver) persistProfileRole(ctx context.Context, id uuid.UUID, email string, role Role) {
	if err := r.repos.Profiles().UpsertRole(ctx, id, email, role); err != nil {
		r.logger.Warn("role resolution: profile upsert failed for %s: %v", id, err)
	}
}

func producerCheck(ctx context.Context, r *RoleResolver, id uuid.UUID, _ string) (*RoleData, error) {
	producer, err := r.repos.Producers().FindActiveByAuthUser(ctx, id)
	if err != nil {
		return nil, err
	}

	return &RoleData{
		Role:     RoleProducer,
		Producer: producer,
	}, nil
}

func companyCheck(ctx context.Context, r *RoleResolver, id uuid.UUID, _ string) (*RoleData, error) {
	company, err := r.repos.Companies().FindByAuthUser(ctx, id)
	if err != nil {
		return nil, err
	}

	return &RoleData{
		Role:                 RoleCompany,
		NeedsPasswordChange:  company.NeedsPasswordChange,
		Company:              company,
		SubscriptionStatus:   company.SubscriptionStatus,
		SubscriptionEndsAt:   company.SubscriptionEndsAt,
		IsSubscriptionActive: company.HasActiveSubscription(timeNow()),
	}, nil
}

func collaboratorCheck(ctx context.Context, r *RoleResolver, id uuid.UUID, _ string) (*RoleData, error) {
	collaborator, err := r.repos.Collaborators().FindActiveByAuthUser(ctx, id)
	if err != nil {
		return nil, err
	}

	data := &RoleData{
		Role:                RoleCollaborator,
		NeedsPasswordChange: collaborator.NeedsPasswordChange,
		Collaborator:        collaborator,
	}

	if company := collaborator.Company; company != nil {
		data.SubscriptionStatus = company.SubscriptionStatus
		data.SubscriptionEndsAt = company.SubscriptionEndsAt
		data.IsSubscriptionActive = company.HasActiveSubscription(timeNow())
		// The parent company counts as active only while its subscription
		// does, same rule the company path applies to its own row.
		data.IsCompanyActive = data.IsSubscriptionActive
	}

	return data, nil
}

// profileFallbackCheck honors a role previously written to the profiles
// table. It only fires when no tenant table claimed the identity, so a
// stale producer tag cannot grant tenant data.
func profileFallbackCheck(ctx context.Context, r *RoleResolver, id uuid.UUID, _ string) (*RoleData, error) {
	profile, err := r.repos.Profiles().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !IsValidRole(profile.Role) || profile.Role == RoleStudent {
		return nil, nil
	}

	return &RoleData{Role: profile.Role}, nil
}
