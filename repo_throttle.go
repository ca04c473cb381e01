package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"
)

// Throttles persists failed login counters keyed by normalized email.
// The table uses the email as its primary key, so this repository talks to
// bun directly instead of going through the uuid keyed generic repository.
type Throttles interface {
	Find(ctx context.Context, email string) (*ThrottleRecord, error)
	Save(ctx context.Context, record *ThrottleRecord) error
	Reset(ctx context.Context, email string) error
}

type throttles struct {
	db *bun.DB
}

var _ Throttles = (*throttles)(nil)

func NewThrottlesRepository(db *bun.DB) Throttles {
	return &throttles{db: db}
}

// NormalizeThrottleKey lowercases and trims the email so the same account
// shares one counter regardless of how the address was typed.
func NormalizeThrottleKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *throttles) Find(ctx context.Context, email string) (*ThrottleRecord, error) {
	record := &ThrottleRecord{}

	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeThrottleKey(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}

func (r *throttles) Save(ctx context.Context, record *ThrottleRecord) error {
	if record == nil {
		return ErrUnableToParseData
	}
	record.Email = NormalizeThrottleKey(record.Email)

	_, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (email) DO UPDATE").
		Set("attempt_count = EXCLUDED.attempt_count").
		Set("last_attempt = EXCLUDED.last_attempt").
		Set("locked_until = EXCLUDED.locked_until").
		Exec(ctx)

	return err
}

func (r *throttles) Reset(ctx context.Context, email string) error {
	_, err := r.db.NewDelete().
		Model((*ThrottleRecord)(nil)).
		Where("email = ?", NormalizeThrottleKey(email)).
		Exec(ctx)
	return err
}
