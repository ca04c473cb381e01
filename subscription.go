package auth

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultSubscriptionCheckInterval is how often the monitor re-reads
	// the subscription state while a company session is active.
	DefaultSubscriptionCheckInterval = 5 * time.Minute
	// SubscriptionCriticalDays marks the urgent tail of an expiring plan.
	SubscriptionCriticalDays = 3
	// SubscriptionWarningDays marks the early heads up window.
	SubscriptionWarningDays = 7
)

// SubscriptionAlertLevel grades how close a subscription is to lapsing.
type SubscriptionAlertLevel string

const (
	SubscriptionAlertNone     SubscriptionAlertLevel = "none"
	SubscriptionAlertWarning  SubscriptionAlertLevel = "warning"
	SubscriptionAlertCritical SubscriptionAlertLevel = "critical"
	SubscriptionAlertBlocked  SubscriptionAlertLevel = "blocked"
)

// SubscriptionState is the monitor's verdict for one company. IsActive,
// IsExpired and NeedsRenewal are recomputed on every evaluation, never
// cached beyond it.
type SubscriptionState struct {
	Status          string
	EndsAt          *time.Time
	DaysUntilExpiry int
	IsActive        bool
	IsExpired       bool
	NeedsRenewal    bool
	Level           SubscriptionAlertLevel
	ShouldBlock     bool
	// Message is the user facing banner text, empty when Level is none.
	Message string
}

// EvaluateSubscription grades a subscription snapshot against a reference
// time. Blocking is decided here and nowhere else: expired, canceled,
// unpaid and past_due block, as does the critical tail of an expiring
// plan; the warning window alerts without blocking.
func EvaluateSubscription(status string, endsAt *time.Time, now time.Time) SubscriptionState {
	state := SubscriptionState{
		Status:          status,
		EndsAt:          endsAt,
		DaysUntilExpiry: math.MaxInt32,
		Level:           SubscriptionAlertNone,
	}

	if endsAt != nil {
		state.DaysUntilExpiry = int(math.Ceil(endsAt.Sub(now).Hours() / 24))
	}

	state.IsActive = status == SubscriptionActive || status == SubscriptionTrialing
	state.IsExpired = status == SubscriptionExpired ||
		(endsAt != nil && state.DaysUntilExpiry <= 0)
	state.NeedsRenewal = !state.IsActive ||
		(endsAt != nil && state.DaysUntilExpiry <= SubscriptionWarningDays)

	switch {
	case state.IsExpired:
		state.ShouldBlock = true
		state.Level = SubscriptionAlertBlocked
		state.Message = "Sua assinatura expirou. Renove para continuar usando a plataforma."
	case status == SubscriptionCanceled, status == SubscriptionUnpaid:
		state.ShouldBlock = true
		state.Level = SubscriptionAlertBlocked
		state.Message = "Sua assinatura foi cancelada. Renove para continuar usando a plataforma."
	case status == SubscriptionPastDue:
		state.ShouldBlock = true
		state.Level = SubscriptionAlertWarning
		state.Message = "Pagamento pendente. Regularize sua assinatura para manter o acesso."
	case endsAt != nil && state.DaysUntilExpiry <= SubscriptionCriticalDays:
		state.ShouldBlock = true
		state.Level = SubscriptionAlertCritical
		state.Message = expiryMessage(state.DaysUntilExpiry)
	case endsAt != nil && state.DaysUntilExpiry <= SubscriptionWarningDays:
		state.Level = SubscriptionAlertWarning
		state.Message = expiryMessage(state.DaysUntilExpiry)
	}

	return state
}

// SubscriptionMonitor periodically re-checks the subscription backing a
// company rooted session and emits an audit event on the transition into
// the blocked state.
type SubscriptionMonitor struct {
	repos    RepositoryManager
	remote   RemoteFunctions
	sink     ActivitySink
	logger   Logger
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	lastBlocked map[uuid.UUID]bool
}

// MonitorOption configures a SubscriptionMonitor.
type MonitorOption func(*SubscriptionMonitor)

func WithMonitorInterval(d time.Duration) MonitorOption {
	return func(m *SubscriptionMonitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithMonitorRemote(remote RemoteFunctions) MonitorOption {
	return func(m *SubscriptionMonitor) {
		m.remote = remote
	}
}

func WithMonitorActivitySink(sink ActivitySink) MonitorOption {
	return func(m *SubscriptionMonitor) {
		m.sink = normalizeActivitySink(sink)
	}
}

func WithMonitorLogger(logger Logger) MonitorOption {
	return func(m *SubscriptionMonitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *SubscriptionMonitor) {
		if now != nil {
			m.now = now
		}
	}
}

func NewSubscriptionMonitor(repos RepositoryManager, opts ...MonitorOption) *SubscriptionMonitor {
	m := &SubscriptionMonitor{
		repos:       repos,
		sink:        noopActivitySink{},
		logger:      defLogger{},
		interval:    DefaultSubscriptionCheckInterval,
		now:         time.Now,
		lastBlocked: map[uuid.UUID]bool{},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// CheckCompany evaluates the stored subscription for one company. When the
// local row needs renewal and is not active, and a billing backend is
// wired, it re-asks the backend once and heals the local row if the
// backend reports a live subscription.
func (m *SubscriptionMonitor) CheckCompany(ctx context.Context, companyID uuid.UUID) (SubscriptionState, error) {
	company, err := m.repos.Companies().GetByID(ctx, companyID.String())
	if err != nil {
		return SubscriptionState{}, err
	}

	state := EvaluateSubscription(company.SubscriptionStatus, company.SubscriptionEndsAt, m.now())

	if state.NeedsRenewal && !state.IsActive && m.remote != nil {
		if healed, ok := m.selfHeal(ctx, companyID); ok {
			state = healed
		}
	}

	m.trackTransition(ctx, company, state)
	return state, nil
}

// selfHeal asks the billing backend directly and, when it reports a live
// subscription, writes the fresh state back so the next check is clean.
func (m *SubscriptionMonitor) selfHeal(ctx context.Context, companyID uuid.UUID) (SubscriptionState, bool) {
	billing, err := m.remote.CheckSubscription(ctx, companyID)
	if err != nil || billing == nil {
		if err != nil {
			m.logger.Warn("subscription self heal failed for %s: %v", companyID, err)
		}
		return SubscriptionState{}, false
	}

	state := EvaluateSubscription(billing.Status, billing.EndsAt, m.now())
	if !state.IsActive {
		return SubscriptionState{}, false
	}

	if err := m.repos.Companies().UpdateSubscription(ctx, companyID, billing.Status, billing.EndsAt); err != nil {
		m.logger.Warn("subscription self heal write failed for %s: %v", companyID, err)
	}

	return state, true
}

func (m *SubscriptionMonitor) trackTransition(ctx context.Context, company *Company, state SubscriptionState) {
	m.mu.Lock()
	was := m.lastBlocked[company.ID]
	m.lastBlocked[company.ID] = state.ShouldBlock
	m.mu.Unlock()

	if state.ShouldBlock && !was {
		recordActivity(ctx, m.sink, m.logger, ActivityEvent{
			EventType: ActivityEventSubscriptionBlocked,
			Email:     company.Email,
			Severity:  SeverityWarning,
			Metadata: map[string]any{
				"company_id": company.ID.String(),
				"status":     state.Status,
			},
		})
	}
}

// Run re-checks the company on a fixed interval until the context is done.
// Check failures are logged and the loop keeps going.
func (m *SubscriptionMonitor) Run(ctx context.Context, companyID uuid.UUID, onState func(SubscriptionState)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	check := func() {
		state, err := m.CheckCompany(ctx, companyID)
		if err != nil {
			m.logger.Error("subscription check failed for %s: %v", companyID, err)
			return
		}
		if onState != nil {
			onState(state)
		}
	}

	check()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func expiryMessage(days int) string {
	if days == 1 {
		return "Sua assinatura expira em 1 dia. Renove para evitar interrupções."
	}
	return fmt.Sprintf("Sua assinatura expira em %d dias. Renove para evitar interrupções.", days)
}
