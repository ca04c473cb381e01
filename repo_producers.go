package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Producers is the producer tenant repository
type Producers interface {
	repository.Repository[*Producer]

	FindActiveByAuthUser(ctx context.Context, authUserID uuid.UUID) (*Producer, error)
	FindActiveByAuthUserTx(ctx context.Context, tx bun.IDB, authUserID uuid.UUID) (*Producer, error)
}

type producers struct {
	repository.Repository[*Producer]
	db *bun.DB
}

var _ Producers = (*producers)(nil)

func NewProducersRepository(db *bun.DB) Producers {
	repo := repository.NewRepository[*Producer](db, repository.ModelHandlers[*Producer]{
		NewRecord: func() *Producer { return &Producer{} },
		GetID: func(p *Producer) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Producer, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &producers{Repository: repo, db: db}
}

func (r *producers) FindActiveByAuthUser(ctx context.Context, authUserID uuid.UUID) (*Producer, error) {
	return r.FindActiveByAuthUserTx(ctx, r.db, authUserID)
}

func (r *producers) FindActiveByAuthUserTx(ctx context.Context, tx bun.IDB, authUserID uuid.UUID) (*Producer, error) {
	record := &Producer{}

	err := tx.NewSelect().
		Model(record).
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

	return record, nil
}
