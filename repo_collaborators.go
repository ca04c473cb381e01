package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Collaborators is the company member repository
type Collaborators interface {
	repository.Repository[*Collaborator]

	// FindActiveByAuthUser loads the membership row with its company so
	// callers can read the subscription state in the same round trip.
	FindActiveByAuthUser(ctx context.Context, authUserID uuid.UUID) (*Collaborator, error)
	FindActiveByAuthUserTx(ctx context.Context, tx bun.IDB, authUserID uuid.UUID) (*Collaborator, error)
	FindByInviteEmail(ctx context.Context, email string) (*Collaborator, error)
	CompleteRegistration(ctx context.Context, record *Collaborator) error

	// UpdateStatus moves the account through its lifecycle. A nil suspendedAt
	// clears the suspension timestamp.
	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, suspendedAt *time.Time) (*Collaborator, error)
}

type collaborators struct {
	repository.Repository[*Collaborator]
	db *bun.DB
}

var _ Collaborators = (*collaborators)(nil)

func NewCollaboratorsRepository(db *bun.DB) Collaborators {
	repo := repository.NewRepository[*Collaborator](db, repository.ModelHandlers[*Collaborator]{
		NewRecord: func() *Collaborator { return &Collaborator{} },
		GetID: func(c *Collaborator) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Collaborator, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &collaborators{Repository: repo, db: db}
}

func (r *collaborators) FindActiveByAuthUser(ctx context.Context, authUserID uuid.UUID) (*Collaborator, error) {
	return r.FindActiveByAuthUserTx(ctx, r.db, authUserID)
}

func (r *collaborators) FindActiveByAuthUserTx(ctx context.Context, tx bun.IDB, authUserID uuid.UUID) (*Collaborator, error) {
	record := &Collaborator{}

	err := tx.NewSelect().
		Model(record).
		Relation("Company").
		Where("?TableAlias.auth_user_id = ?", authUserID).
		Where("?TableAlias.is_active = ?", true).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"auth_user_id": authUserID.String()})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

func (r *collaborators) FindByInviteEmail(ctx context.Context, email string) (*Collaborator, error) {
	record := &Collaborator{}

	err := r.db.NewSelect().
		Model(record).
		Relation("Company").
		Where("LOWER(?TableAlias.email) = LOWER(?)", email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

// CompleteRegistration persists the profile fields captured during account
// activation and flips the registration flags in one update.
func (r *collaborators) CompleteRegistration(ctx context.Context, record *Collaborator) error {
	if record == nil || record.ID == uuid.Nil {
		return ErrUnableToParseData
	}

	_, err := r.db.NewUpdate().
		Model(record).
		Column(
			"auth_user_id",
			"phone",
			"birth_date",
			"gender",
			"state",
			"city",
			"country",
			"needs_password_change",
			"needs_complete_registration",
			"status",
			"updated_at",
		).
		WherePK().
		Exec(ctx)

	return err
}

func (r *collaborators) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, suspendedAt *time.Time) (*Collaborator, error) {
	if id == uuid.Nil {
		return nil, ErrUnableToParseData
	}

	record := &Collaborator{
		ID:          id,
		Status:      status,
		SuspendedAt: suspendedAt,
	}

	_, err := r.db.NewUpdate().
		Model(record).
		Column("status", "suspended_at").
		Set("updated_at = CURRENT_TIMESTAMP").
		WherePK().
		Returning("*").
		Exec(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}
