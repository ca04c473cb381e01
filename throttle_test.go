package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeThrottles struct {
	records map[string]*ThrottleRecord
	findErr error
	saveErr error
}

func newFakeThrottles() *fakeThrottles {
	return &fakeThrottles{records: map[string]*ThrottleRecord{}}
}

func (f *fakeThrottles) Find(_ context.Context, email string) (*ThrottleRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	record, ok := f.records[NormalizeThrottleKey(email)]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

func (f *fakeThrottles) Save(_ context.Context, record *ThrottleRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *record
	f.records[record.Email] = &cp
	return nil
}

func (f *fakeThrottles) Reset(_ context.Context, email string) error {
	delete(f.records, NormalizeThrottleKey(email))
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestThrottleAllowsFreshEmail(t *testing.T) {
	repo := newFakeThrottles()
	throttle := NewLoginThrottle(repo)

	check := throttle.CheckLoginAttempts(context.Background(), "Fresh@Example.com")

	assert.True(t, check.Allowed)
	assert.Equal(t, DefaultMaxLoginAttempts, check.RemainingAttempts)
	assert.Empty(t, check.Message)

	// The first check seeds a zero-attempt record under the normalized key.
	if record := repo.records["fresh@example.com"]; assert.NotNil(t, record) {
		assert.Zero(t, record.AttemptCount)
		assert.Nil(t, record.LockedUntil)
	}
}

func TestThrottleLocksAfterMaxFailures(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := newFakeThrottles()
	throttle := NewLoginThrottle(repo, WithThrottleClock(fixedClock(now)))

	var check ThrottleCheck
	for i := 0; i < DefaultMaxLoginAttempts; i++ {
		check = throttle.RecordFailedLogin(context.Background(), "User@Example.com")
	}

	assert.False(t, check.Allowed)
	if assert.NotNil(t, check.LockedUntil) {
		assert.Equal(t, now.Add(DefaultLockoutDuration), *check.LockedUntil)
	}
	assert.NotEmpty(t, check.Message)

	blocked := throttle.CheckLoginAttempts(context.Background(), "user@example.com")
	assert.False(t, blocked.Allowed)
	assert.NotNil(t, blocked.LockedUntil)
}

func TestThrottleWarnsOnLowAttempts(t *testing.T) {
	throttle := NewLoginThrottle(newFakeThrottles())

	for i := 0; i < DefaultMaxLoginAttempts-2; i++ {
		throttle.RecordFailedLogin(context.Background(), "low@example.com")
	}

	check := throttle.CheckLoginAttempts(context.Background(), "low@example.com")
	assert.True(t, check.Allowed)
	assert.Equal(t, 2, check.RemainingAttempts)
	assert.NotEmpty(t, check.Message)
}

func TestThrottleExpiredLockoutAllowsRetry(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	current := start
	repo := newFakeThrottles()
	throttle := NewLoginThrottle(repo, WithThrottleClock(func() time.Time { return current }))

	for i := 0; i < DefaultMaxLoginAttempts; i++ {
		throttle.RecordFailedLogin(context.Background(), "retry@example.com")
	}
	assert.False(t, throttle.CheckLoginAttempts(context.Background(), "retry@example.com").Allowed)

	current = start.Add(DefaultLockoutDuration + time.Minute)
	check := throttle.CheckLoginAttempts(context.Background(), "retry@example.com")
	assert.True(t, check.Allowed)
	assert.Equal(t, DefaultMaxLoginAttempts, check.RemainingAttempts)
	assert.Nil(t, check.LockedUntil)

	// The elapsed lockout is cleared from storage as well.
	if record := repo.records["retry@example.com"]; assert.NotNil(t, record) {
		assert.Zero(t, record.AttemptCount)
		assert.Nil(t, record.LockedUntil)
	}

	// The next failure starts a fresh streak instead of locking again.
	next := throttle.RecordFailedLogin(context.Background(), "retry@example.com")
	assert.True(t, next.Allowed)
	assert.Equal(t, DefaultMaxLoginAttempts-1, next.RemainingAttempts)
}

func TestThrottleStaleStreakResets(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	current := start
	throttle := NewLoginThrottle(newFakeThrottles(), WithThrottleClock(func() time.Time { return current }))

	for i := 0; i < DefaultMaxLoginAttempts-1; i++ {
		throttle.RecordFailedLogin(context.Background(), "stale@example.com")
	}

	current = start.Add(DefaultThrottleResetWindow + time.Hour)
	check := throttle.CheckLoginAttempts(context.Background(), "stale@example.com")
	assert.True(t, check.Allowed)
	assert.Equal(t, DefaultMaxLoginAttempts, check.RemainingAttempts)
}

func TestThrottleFailsOpenOnStorageErrors(t *testing.T) {
	repo := newFakeThrottles()
	repo.findErr = errors.New("connection refused")
	throttle := NewLoginThrottle(repo)

	check := throttle.CheckLoginAttempts(context.Background(), "down@example.com")
	assert.True(t, check.Allowed)

	// Writes are swallowed too, the caller still gets a verdict.
	repo.saveErr = errors.New("connection refused")
	failed := throttle.RecordFailedLogin(context.Background(), "down@example.com")
	assert.True(t, failed.Allowed)
}

func TestThrottleSuccessClearsCounter(t *testing.T) {
	repo := newFakeThrottles()
	throttle := NewLoginThrottle(repo)

	throttle.RecordFailedLogin(context.Background(), "ok@example.com")
	throttle.RecordFailedLogin(context.Background(), "ok@example.com")
	throttle.RecordSuccessfulLogin(context.Background(), "ok@example.com")

	check := throttle.CheckLoginAttempts(context.Background(), "ok@example.com")
	assert.Equal(t, DefaultMaxLoginAttempts, check.RemainingAttempts)
}
