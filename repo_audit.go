package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditLog is the append-only sink behind the activity recorder
type AuditLog interface {
	Append(ctx context.Context, record *AuditRecord) error
	CountRecentFailures(ctx context.Context, email string, window time.Duration) (int, error)
}

type auditLog struct {
	db *bun.DB
}

var _ AuditLog = (*auditLog)(nil)

func NewAuditLogRepository(db *bun.DB) AuditLog {
	return &auditLog{db: db}
}

func (r *auditLog) Append(ctx context.Context, record *AuditRecord) error {
	if record == nil {
		return ErrUnableToParseData
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}

	_, err := r.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (r *auditLog) CountRecentFailures(ctx context.Context, email string, window time.Duration) (int, error) {
	since := time.Now().Add(-window)

	return r.db.NewSelect().
		Model((*AuditRecord)(nil)).
		Where("event_type = ?", string(ActivityEventLoginFailure)).
		Where("LOWER(email) = LOWER(?)", email).
		Where("created_at >= ?", since).
		Count(ctx)
}

// DBActivitySink adapts the audit repository to the ActivitySink interface
// used by the orchestrators. Writes are best effort at the call site.
func DBActivitySink(repo AuditLog) ActivitySink {
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		record := &AuditRecord{
			EventType: string(event.EventType),
			Email:     event.Email,
			Severity:  event.Severity,
			Metadata:  event.Metadata,
		}

		if event.UserID != "" {
			if id, err := uuid.Parse(event.UserID); err == nil {
				record.UserID = &id
			}
		}

		if !event.OccurredAt.IsZero() {
			at := event.OccurredAt
			record.CreatedAt = &at
		}

		return repo.Append(ctx, record)
	})
}
