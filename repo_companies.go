package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Companies is the company tenant repository
type Companies interface {
	repository.Repository[*Company]

	FindByAuthUser(ctx context.Context, authUserID uuid.UUID) (*Company, error)
	FindByAuthUserTx(ctx context.Context, tx bun.IDB, authUserID uuid.UUID) (*Company, error)
	// FindUnlinkedByEmail looks for an existing company row that has no
	// auth identity attached yet. Used by the sign in bootstrap path.
	FindUnlinkedByEmail(ctx context.Context, email string) (*Company, error)
	LinkAuthUser(ctx context.Context, companyID, authUserID uuid.UUID) error
	UpdateSubscription(ctx context.Context, companyID uuid.UUID, status string, endsAt *time.Time) error
}

type companies struct {
	repository.Repository[*Company]
	db *bun.DB
}

var _ Companies = (*companies)(nil)

func NewCompaniesRepository(db *bun.DB) Companies {
	repo := repository.NewRepository[*Company](db, repository.ModelHandlers[*Company]{
		NewRecord: func() *Company { return &Company{} },
		GetID: func(c *Company) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Company, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &companies{Repository: repo, db: db}
}

func (r *companies) FindByAuthUser(ctx context.Context, authUserID uuid.UUID) (*Company, error) {
	return r.FindByAuthUserTx(ctx, r.db, authUserID)
}

func (r *companies) FindByAuthUserTx(ctx context.Context, tx bun.IDB, authUserID uuid.UUID) (*Company, error) {
	record := &Company{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.auth_user_id = ?", authUserID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"auth_user_id": authUserID.String()})
		}
		return nil, err
	}

	return record, nil
}

func (r *companies) FindUnlinkedByEmail(ctx context.Context, email string) (*Company, error) {
	record := &Company{}

	err := r.db.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = LOWER(?)", email).
		Where("?TableAlias.auth_user_id IS NULL").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	return record, nil
}

func (r *companies) LinkAuthUser(ctx context.Context, companyID, authUserID uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*Company)(nil)).
		Set("auth_user_id = ?", authUserID).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", companyID).
		Where("auth_user_id IS NULL").
		Exec(ctx)
	return err
}

func (r *companies) UpdateSubscription(ctx context.Context, companyID uuid.UUID, status string, endsAt *time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*Company)(nil)).
		Set("subscription_status = ?", status).
		Set("subscription_ends_at = ?", endsAt).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", companyID).
		Exec(ctx)
	return err
}
