package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates the closed audit event set.
type ActivityEventType string

const (
	ActivityEventLoginSuccess        ActivityEventType = "login_success"
	ActivityEventLoginFailure        ActivityEventType = "login_failure"
	ActivityEventLogout              ActivityEventType = "logout"
	ActivityEventPasswordReset       ActivityEventType = "password_reset"
	ActivityEventPasswordChange      ActivityEventType = "password_change"
	ActivityEventSignup              ActivityEventType = "signup"
	ActivityEventSubscriptionBlocked ActivityEventType = "subscription_blocked"
	ActivityEventAccountStatusChange ActivityEventType = "account_status_change"
)

// Severity tags carried in event metadata.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// ActivityEvent captures audit-friendly information about an action. Records
// are append-only; the core only ever reads them back for recent-failure
// counting.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Email      string
	Severity   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing purposes. Sinks run
// best-effort: callers log failures and move on, so a sink outage can never
// fail a user-facing flow.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity is the shared fire-and-forget wrapper: it stamps defaults,
// invokes the sink, and logs (never propagates) failures. Keeping the wrapper
// in one place makes it hard to accidentally turn audit logging load-bearing.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		if logger == nil {
			logger = defLogger{}
		}
		logger.Warn("activity sink record error: %v", err)
	}
}
