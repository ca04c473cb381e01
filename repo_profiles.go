package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles stores the denormalized role snapshot keyed by auth identity id
type Profiles interface {
	repository.Repository[*Profile]

	FindByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	// UpsertRole writes the resolved role back to the profile row. Callers
	// treat failures as non fatal, the resolver is the source of truth.
	UpsertRole(ctx context.Context, id uuid.UUID, email string, role Role) error
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var _ Profiles = (*profiles)(nil)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &profiles{Repository: repo, db: db}
}

func (r *profiles) FindByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	record := &Profile{}

	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (r *profiles) UpsertRole(ctx context.Context, id uuid.UUID, email string, role Role) error {
	now := time.Now()
	record := &Profile{
		ID:        id,
		Email:     email,
		Role:      role,
		UpdatedAt: &now,
	}

	_, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("role = EXCLUDED.role").
		Set("email = EXCLUDED.email").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}
