package auth

import (
	"context"
	"time"
)

const (
	// DefaultMaxLoginAttempts is how many consecutive failures we tolerate
	// before locking the account out.
	DefaultMaxLoginAttempts = 5
	// DefaultLockoutDuration is how long a locked account stays locked.
	DefaultLockoutDuration = 15 * time.Minute
	// DefaultThrottleResetWindow clears stale counters. A failure streak
	// older than this no longer counts against the user.
	DefaultThrottleResetWindow = 24 * time.Hour
)

// ThrottleCheck is the verdict for a single login attempt.
type ThrottleCheck struct {
	Allowed           bool
	RemainingAttempts int
	LockedUntil       *time.Time
	// Message is a user facing string, set when the attempt is blocked or
	// when the user is running low on attempts.
	Message string
}

// LoginThrottle counts failed sign in attempts per email and blocks further
// attempts once the limit is reached. Storage errors never block a login,
// the guard fails open and lets the credential check decide.
type LoginThrottle struct {
	repo        Throttles
	logger      Logger
	maxAttempts int
	lockout     time.Duration
	resetWindow time.Duration
	now         func() time.Time
}

// ThrottleOption configures a LoginThrottle.
type ThrottleOption func(*LoginThrottle)

func WithThrottleLogger(logger Logger) ThrottleOption {
	return func(t *LoginThrottle) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithThrottleMaxAttempts(max int) ThrottleOption {
	return func(t *LoginThrottle) {
		if max > 0 {
			t.maxAttempts = max
		}
	}
}

func WithThrottleLockout(d time.Duration) ThrottleOption {
	return func(t *LoginThrottle) {
		if d > 0 {
			t.lockout = d
		}
	}
}

func WithThrottleResetWindow(d time.Duration) ThrottleOption {
	return func(t *LoginThrottle) {
		if d > 0 {
			t.resetWindow = d
		}
	}
}

func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(t *LoginThrottle) {
		if now != nil {
			t.now = now
		}
	}
}

func NewLoginThrottle(repo Throttles, opts ...ThrottleOption) *LoginThrottle {
	t := &LoginThrottle{
		repo:        repo,
		logger:      defLogger{},
		maxAttempts: DefaultMaxLoginAttempts,
		lockout:     DefaultLockoutDuration,
		resetWindow: DefaultThrottleResetWindow,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// CheckLoginAttempts decides whether a sign in attempt may proceed. It never
// returns an error: if the counter cannot be read the attempt is allowed.
func (t *LoginThrottle) CheckLoginAttempts(ctx context.Context, email string) ThrottleCheck {
	allowed := ThrottleCheck{
		Allowed:           true,
		RemainingAttempts: t.maxAttempts,
	}

	record, err := t.repo.Find(ctx, email)
	if err != nil {
		t.logger.Error("throttle check failed, allowing attempt: %v", err)
		return allowed
	}

	now := t.now()

	if record == nil {
		seed := &ThrottleRecord{Email: NormalizeThrottleKey(email)}
		if err := t.repo.Save(ctx, seed); err != nil {
			t.logger.Error("throttle seed failed: %v", err)
		}
		return allowed
	}

	if record.LockedUntil != nil {
		if record.LockedUntil.After(now) {
			until := *record.LockedUntil
			return ThrottleCheck{
				Allowed:     false,
				LockedUntil: &until,
				Message:     LockoutMessage(until, now),
			}
		}
		// The lockout served its time, the counter starts over.
		record.AttemptCount = 0
		record.LockedUntil = nil
		if err := t.repo.Save(ctx, record); err != nil {
			t.logger.Error("throttle write failed: %v", err)
		}
		return allowed
	}

	// A streak that went stale no longer counts.
	if record.LastAttempt != nil && now.Sub(*record.LastAttempt) > t.resetWindow {
		record.AttemptCount = 0
		if err := t.repo.Save(ctx, record); err != nil {
			t.logger.Error("throttle write failed: %v", err)
		}
		return allowed
	}

	remaining := t.maxAttempts - record.AttemptCount
	if remaining < 0 {
		remaining = 0
	}
	allowed.RemainingAttempts = remaining

	if remaining > 0 && remaining <= 2 {
		allowed.Message = LowAttemptsWarning(remaining)
	}

	return allowed
}

// RecordFailedLogin bumps the counter and locks the account when the limit
// is reached. Storage errors are swallowed, a broken counter must not turn
// into a login failure of its own.
func (t *LoginThrottle) RecordFailedLogin(ctx context.Context, email string) ThrottleCheck {
	now := t.now()

	record, err := t.repo.Find(ctx, email)
	if err != nil {
		t.logger.Error("throttle read failed on record: %v", err)
		record = nil
	}

	if record == nil {
		record = &ThrottleRecord{Email: NormalizeThrottleKey(email)}
	}

	// Expired lockouts and stale streaks start over.
	if record.LockedUntil != nil && !record.LockedUntil.After(now) {
		record.AttemptCount = 0
		record.LockedUntil = nil
	}
	if record.LastAttempt != nil && now.Sub(*record.LastAttempt) > t.resetWindow {
		record.AttemptCount = 0
	}

	record.AttemptCount++
	record.LastAttempt = &now

	check := ThrottleCheck{Allowed: true}

	if record.AttemptCount >= t.maxAttempts {
		until := now.Add(t.lockout)
		record.LockedUntil = &until
		check = ThrottleCheck{
			Allowed:     false,
			LockedUntil: &until,
			Message:     LockoutMessage(until, now),
		}
	} else {
		remaining := t.maxAttempts - record.AttemptCount
		check.RemainingAttempts = remaining
		if remaining <= 2 {
			check.Message = LowAttemptsWarning(remaining)
		}
	}

	if err := t.repo.Save(ctx, record); err != nil {
		t.logger.Error("throttle write failed: %v", err)
	}

	return check
}

// RecordSuccessfulLogin clears the counter. Best effort.
func (t *LoginThrottle) RecordSuccessfulLogin(ctx context.Context, email string) {
	if err := t.repo.Reset(ctx, email); err != nil {
		t.logger.Error("throttle reset failed: %v", err)
	}
}
