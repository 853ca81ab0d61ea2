package rewards

import (
	"context"
	"errors"
	"sync"
	"time"

	"panelbill/internal/model"
)

var (
	ErrSessionActive   = errors.New("afk session already active")
	ErrNoSession       = errors.New("no active afk session")
	ErrHeartbeatRate   = errors.New("heartbeat too soon")
	minHeartbeatPeriod = 50 * time.Second
)

// Ledger is the credit surface the rewards paths share with everything
// else that moves coins.
type Ledger interface {
	Credit(ctx context.Context, accountID string, amount int64, description string, meta map[string]any) (*model.LedgerEntry, error)
	CreditIdempotent(ctx context.Context, accountID string, amount int64, description string, meta map[string]any, idempotencyKey string) (*model.LedgerEntry, error)
}

type afkSession struct {
	startedAt     time.Time
	lastHeartbeat time.Time
	coinsEarned   int64
}

// AFKManager pays out idle-page rewards. Each heartbeat credits the
// per-minute reward incrementally; Stop is a pure state transition.
//
// The panel this replaces re-credited the session's cumulative total on
// stop, on top of the incremental heartbeat credits, double-paying every
// session. Stop here deliberately moves no funds; a test pins that.
type AFKManager struct {
	mu       sync.Mutex
	sessions map[string]*afkSession

	ledger         Ledger
	coinsPerMinute int64
	nowFn          func() time.Time
}

type AFKOption func(*AFKManager)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) AFKOption {
	return func(m *AFKManager) { m.nowFn = now }
}

func NewAFKManager(lg Ledger, coinsPerMinute int64, opts ...AFKOption) *AFKManager {
	m := &AFKManager{
		sessions:       make(map[string]*afkSession),
		ledger:         lg,
		coinsPerMinute: coinsPerMinute,
		nowFn:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a session for the account.
func (m *AFKManager) Start(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[accountID]; ok {
		return ErrSessionActive
	}
	now := m.nowFn()
	m.sessions[accountID] = &afkSession{startedAt: now, lastHeartbeat: now}
	return nil
}

// Heartbeat credits one minute's reward. Heartbeats arriving faster than
// the minimum period are rejected so a misbehaving client cannot farm
// coins by hammering the endpoint.
func (m *AFKManager) Heartbeat(ctx context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	session, ok := m.sessions[accountID]
	if !ok {
		m.mu.Unlock()
		return 0, ErrNoSession
	}
	now := m.nowFn()
	if now.Sub(session.lastHeartbeat) < minHeartbeatPeriod && session.coinsEarned > 0 {
		m.mu.Unlock()
		return 0, ErrHeartbeatRate
	}
	session.lastHeartbeat = now
	m.mu.Unlock()

	_, err := m.ledger.Credit(ctx, accountID, m.coinsPerMinute, "afk reward", map[string]any{
		"source": "afk",
	})
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if session, ok := m.sessions[accountID]; ok {
		session.coinsEarned += m.coinsPerMinute
	}
	m.mu.Unlock()
	return m.coinsPerMinute, nil
}

// Stop closes the session and returns the cumulative total for display.
// No funds move here: every coin was already credited by its heartbeat.
func (m *AFKManager) Stop(accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[accountID]
	if !ok {
		return 0, ErrNoSession
	}
	delete(m.sessions, accountID)
	return session.coinsEarned, nil
}

// Active reports whether the account has an open session.
func (m *AFKManager) Active(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[accountID]
	return ok
}
