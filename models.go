package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the effective tenant role of an authenticated identity
type Role = string

const (
	// RoleProducer is a platform producer (i.e. content owner)
	RoleProducer Role = "producer"
	// RoleCompany is a company owner account
	RoleCompany Role = "company"
	// RoleCollaborator is a company collaborator (company_users record)
	RoleCollaborator Role = "collaborator"
	// RoleStudent is the default fallback role
	RoleStudent Role = "student"
)

// Subscription status values mirror the billing provider's enum.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
	SubscriptionUnpaid   = "unpaid"
	SubscriptionExpired  = "expired"
)

// AccountStatus is the lifecycle status of a collaborator account
type AccountStatus = string

const (
	// AccountStatusPending means the invitation was sent but registration is incomplete
	AccountStatusPending AccountStatus = "pending_registration"
	// AccountStatusActive is a fully registered account
	AccountStatusActive AccountStatus = "active"
	// AccountStatusSuspended is temporarily blocked by an admin
	AccountStatusSuspended AccountStatus = "suspended"
	// AccountStatusArchived is terminal
	AccountStatusArchived AccountStatus = "archived"
)

// Producer is a producer tenant record keyed by the auth identity
type Producer struct {
	bun.BaseModel `bun:"table:producers,alias:prd"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AuthUserID    uuid.UUID  `bun:"auth_user_id,notnull,type:uuid" json:"auth_user_id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	IsActive      bool       `bun:"is_active" json:"is_active,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Company is a company owner tenant record. Subscription fields are written
// by the billing webhook outside this package; we only read them.
type Company struct {
	bun.BaseModel       `bun:"table:companies,alias:cmp"`
	ID                  uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AuthUserID          *uuid.UUID `bun:"auth_user_id,nullzero,type:uuid" json:"auth_user_id,omitempty"`
	Name                string     `bun:"name,notnull" json:"name,omitempty"`
	Email               string     `bun:"email,notnull,unique" json:"email,omitempty"`
	NeedsPasswordChange bool       `bun:"needs_password_change" json:"needs_password_change,omitempty"`
	SubscriptionStatus  string     `bun:"subscription_status" json:"subscription_status,omitempty"`
	SubscriptionEndsAt  *time.Time `bun:"subscription_ends_at,nullzero" json:"subscription_ends_at,omitempty"`
	IsActive            bool       `bun:"is_active" json:"is_active,omitempty"`
	CreatedAt           *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt           *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasActiveSubscription reports whether the subscription grants access: the
// status must be active or trialing and the end date, when set, must be in
// the future.
func (c *Company) HasActiveSubscription(now time.Time) bool {
	if c == nil {
		return false
	}
	if c.SubscriptionStatus != SubscriptionActive && c.SubscriptionStatus != SubscriptionTrialing {
		return false
	}
	if c.SubscriptionEndsAt == nil {
		return true
	}
	return c.SubscriptionEndsAt.After(now)
}

// Collaborator is a company_users record: a member invited by a company owner
type Collaborator struct {
	bun.BaseModel             `bun:"table:company_users,alias:cu"`
	ID                        uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AuthUserID                *uuid.UUID    `bun:"auth_user_id,nullzero,type:uuid" json:"auth_user_id,omitempty"`
	CompanyID                 uuid.UUID     `bun:"company_id,notnull,type:uuid" json:"company_id,omitempty"`
	Company                   *Company      `bun:"rel:belongs-to,join:company_id=id" json:"company,omitempty"`
	Name                      string        `bun:"name,notnull" json:"name,omitempty"`
	Email                     string        `bun:"email,notnull" json:"email,omitempty"`
	Phone                     string        `bun:"phone" json:"phone,omitempty"`
	BirthDate                 *time.Time    `bun:"birth_date,nullzero" json:"birth_date,omitempty"`
	Gender                    string        `bun:"gender" json:"gender,omitempty"`
	State                     string        `bun:"state" json:"state,omitempty"`
	City                      string        `bun:"city" json:"city,omitempty"`
	Country                   string        `bun:"country" json:"country,omitempty"`
	NeedsPasswordChange       bool          `bun:"needs_password_change" json:"needs_password_change,omitempty"`
	NeedsCompleteRegistration bool          `bun:"needs_complete_registration" json:"needs_complete_registration,omitempty"`
	IsActive                  bool          `bun:"is_active" json:"is_active,omitempty"`
	Status                    AccountStatus `bun:"status" json:"status,omitempty"`
	SuspendedAt               *time.Time    `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	ActivatedAt               *time.Time    `bun:"activated_at,nullzero" json:"activated_at,omitempty"`
	CreatedAt                 *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt                 *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt                 *time.Time    `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the lifecycle status for records created before the
// status column existed.
func (c *Collaborator) EnsureStatus() {
	if c == nil || c.Status != "" {
		return
	}
	if c.NeedsCompleteRegistration {
		c.Status = AccountStatusPending
		return
	}
	c.Status = AccountStatusActive
}

// Profile is the denormalized per-identity role mirror. The resolver upserts
// it after every resolution so flattened lookups (and the role fallback) stay
// in sync with the tenant tables. Its primary key is the auth identity id.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email" json:"email,omitempty"`
	FullName      string     `bun:"full_name" json:"full_name,omitempty"`
	Role          Role       `bun:"user_role,notnull" json:"user_role,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// ThrottleRecord is the per-email failed-login counter. It lives in the
// remote store, not in memory, so lockouts survive reloads and apply across
// devices and tabs.
type ThrottleRecord struct {
	bun.BaseModel `bun:"table:login_throttle,alias:lt"`
	Email         string     `bun:"email,pk" json:"email,omitempty"`
	AttemptCount  int        `bun:"attempt_count" json:"attempt_count,omitempty"`
	LastAttempt   *time.Time `bun:"last_attempt,nullzero" json:"last_attempt,omitempty"`
	LockedUntil   *time.Time `bun:"locked_until,nullzero" json:"locked_until,omitempty"`
}

// AuditRecord is an append-only audit log row
type AuditRecord struct {
	bun.BaseModel `bun:"table:audit_log,alias:aud"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	EventType     string         `bun:"event_type,notnull" json:"event_type,omitempty"`
	UserID        *uuid.UUID     `bun:"user_id,nullzero,type:uuid" json:"user_id,omitempty"`
	Email         string         `bun:"email" json:"email,omitempty"`
	Severity      string         `bun:"severity" json:"severity,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// AddMetadata appends information to the metadata attribute
func (a *AuditRecord) AddMetadata(key string, val any) *AuditRecord {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = val
	return a
}
