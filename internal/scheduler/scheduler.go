package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"panelbill/internal/ledger"
	"panelbill/internal/lifecycle"
	"panelbill/internal/model"
)

// ErrCycleInProgress is returned when a trigger fires while the previous
// cycle is still running. The trigger is skipped, never queued.
var ErrCycleInProgress = errors.New("billing cycle already in progress")

// ConfigStore yields the billing policy, read fresh at the start of every
// cycle so edits apply without a restart.
type ConfigStore interface {
	BillingConfig(ctx context.Context) (model.BillingConfig, error)
}

// ResourceStore lists the resources each cycle pass iterates and resolves
// their owners.
type ResourceStore interface {
	ListBillable(ctx context.Context) ([]model.Resource, error)
	ListSuspended(ctx context.Context) ([]model.Resource, error)
	GetAccount(ctx context.Context, accountID string) (model.Account, error)
}

// Ledger is the charge surface the cycle uses.
type Ledger interface {
	Debit(ctx context.Context, accountID string, amount int64, description string, meta map[string]any) (*model.LedgerEntry, error)
	Balance(ctx context.Context, accountID string) (int64, error)
}

// Lifecycle drives the suspend/resume/terminate transitions.
type Lifecycle interface {
	Suspend(ctx context.Context, res model.Resource, reason model.SuspendReason, actor string) error
	Resume(ctx context.Context, res model.Resource, actor string) error
	Terminate(ctx context.Context, res model.Resource, actor string) error
}

// Liveness answers whether a backing instance is currently running,
// through the resilience layer.
type Liveness interface {
	CheckLiveness(ctx context.Context, instanceRef string) (bool, error)
}

// Scheduler re-enters the billing cycle on a fixed wall-clock interval.
// At most one cycle is in flight: overlapping triggers are dropped.
type Scheduler struct {
	config    ConfigStore
	resources ResourceStore
	ledger    Ledger
	machine   Lifecycle
	liveness  Liveness

	fallback time.Duration
	nowFn    func() time.Time
	after    func(d time.Duration) <-chan time.Time

	inFlight atomic.Bool
}

type Option func(*Scheduler)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.nowFn = now }
}

// WithTimerFunc replaces the wait-for-next-tick primitive for tests.
func WithTimerFunc(after func(d time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) { s.after = after }
}

// WithFallbackInterval sets the cadence used when the billing config
// cannot be read.
func WithFallbackInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.fallback = d }
}

func New(config ConfigStore, resources ResourceStore, lg Ledger, machine Lifecycle, liveness Liveness, opts ...Option) *Scheduler {
	s := &Scheduler{
		config:    config,
		resources: resources,
		ledger:    lg,
		machine:   machine,
		liveness:  liveness,
		fallback:  10 * time.Minute,
		nowFn:     time.Now,
		after:     time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the timer loop until ctx is cancelled. Implements the
// infrastructure Server interface so the App supervises it.
func (s *Scheduler) Start(ctx context.Context) error {
	slog.Info("billing scheduler started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("billing scheduler stopped")
			return nil
		case <-s.after(s.interval(ctx)):
			switch err := s.RunCycle(ctx); {
			case errors.Is(err, ErrCycleInProgress):
				slog.Warn("previous billing cycle still running, skipping trigger")
			case err != nil:
				slog.Error("billing cycle failed", "error", err)
			}
		}
	}
}

// Stop is a no-op; shutdown happens through the context, matching the
// other servers.
func (s *Scheduler) Stop(ctx context.Context) error { return nil }

// interval reads the current cadence so interval edits take effect on the
// next tick.
func (s *Scheduler) interval(ctx context.Context) time.Duration {
	cfg, err := s.config.BillingConfig(ctx)
	if err != nil {
		slog.Warn("cannot read billing config for interval, using fallback",
			"fallback", s.fallback, "error", err)
		return s.fallback
	}
	return time.Duration(cfg.IntervalMinutes) * time.Minute
}

// RunCycle executes one billing cycle: per-resource policy precheck,
// liveness check and charge, then the grace-period termination pass, then
// the auto-resume pass. Safe to call from an ops trigger as well as the
// timer; overlapping calls return ErrCycleInProgress.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}
	defer s.inFlight.Store(false)

	cfg, err := s.config.BillingConfig(ctx)
	if err != nil {
		return fmt.Errorf("load billing config: %w", err)
	}
	if !cfg.Enabled {
		slog.Debug("billing disabled, skipping cycle")
		return nil
	}

	started := s.nowFn()
	billable, err := s.resources.ListBillable(ctx)
	if err != nil {
		return fmt.Errorf("list billable resources: %w", err)
	}
	var charged, suspended, skipped int
	for _, res := range billable {
		res := res
		outcome := s.guardedOutcome(res.ID, func() (cycleOutcome, error) {
			return s.processResource(ctx, cfg, res)
		})
		switch outcome {
		case outcomeCharged:
			charged++
		case outcomeSuspended:
			suspended++
		default:
			skipped++
		}
	}

	suspendedList, err := s.resources.ListSuspended(ctx)
	if err != nil {
		return fmt.Errorf("list suspended resources: %w", err)
	}
	terminatedIDs := s.terminateExpired(ctx, cfg, suspendedList)
	resumed := 0
	if cfg.AutoResume {
		resumed = s.resumeFunded(ctx, cfg, suspendedList, terminatedIDs)
	}

	slog.Info("billing cycle complete",
		"duration", s.nowFn().Sub(started),
		"billable", len(billable),
		"charged", charged,
		"suspended", suspended,
		"skipped", skipped,
		"terminated", len(terminatedIDs),
		"resumed", resumed,
	)
	return nil
}

type cycleOutcome int

const (
	outcomeSkipped cycleOutcome = iota
	outcomeCharged
	outcomeSuspended
)

// guardedOutcome is the per-resource error boundary: an error or panic in
// one resource's processing never aborts its siblings.
func (s *Scheduler) guardedOutcome(resourceID string, fn func() (cycleOutcome, error)) (outcome cycleOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = outcomeSkipped
			slog.Error("panic while processing resource", "resource_id", resourceID, "panic", r)
		}
	}()
	outcome, err := fn()
	if err != nil {
		slog.Error("failed to process resource", "resource_id", resourceID, "error", err)
		return outcomeSkipped
	}
	return outcome
}

// guarded is the same boundary for passes that only report errors.
func (s *Scheduler) guarded(resourceID string, fn func() error) {
	s.guardedOutcome(resourceID, func() (cycleOutcome, error) {
		return outcomeSkipped, fn()
	})
}

func (s *Scheduler) processResource(ctx context.Context, cfg model.BillingConfig, res model.Resource) (cycleOutcome, error) {
	account, err := s.resources.GetAccount(ctx, res.AccountID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("resolve owner %s: %w", res.AccountID, err)
	}

	// Policy precheck runs before the liveness check on purpose:
	// non-compliant resources are suspended even while offline.
	if reason, violated := s.policyViolation(account); violated {
		if err := s.machine.Suspend(ctx, res, reason, lifecycle.SystemActor); err != nil && !errors.Is(err, lifecycle.ErrAlreadySuspended) {
			return outcomeSkipped, fmt.Errorf("suspend for policy %s: %w", reason, err)
		}
		return outcomeSuspended, nil
	}

	online, err := s.liveness.CheckLiveness(ctx, res.ExternalRef)
	if err != nil {
		// Fail-safe: never charge when liveness cannot be verified. The
		// resource simply skips this cycle; the user is not notified for
		// infrastructure blips.
		slog.Warn("liveness unknown, skipping charge this cycle",
			"resource_id", res.ID, "instance_ref", res.ExternalRef, "error", err)
		return outcomeSkipped, nil
	}
	if !online {
		return outcomeSkipped, nil
	}

	charge := cfg.ChargeFor(res.BillableUnits())
	if charge == 0 {
		return outcomeSkipped, nil
	}
	_, err = s.ledger.Debit(ctx, res.AccountID, charge, "usage charge", map[string]any{
		"resource_id": res.ID,
		"units":       res.BillableUnits(),
		"cycle_at":    s.nowFn().UTC().Format(time.RFC3339),
	})
	switch {
	case err == nil:
		return outcomeCharged, nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		if !cfg.AutoSuspend {
			// Explicit policy choice: without auto-suspend the resource
			// keeps running unpaid until an operator intervenes.
			slog.Warn("insufficient coins and auto-suspend disabled, leaving resource running",
				"resource_id", res.ID, "account_id", res.AccountID, "charge", charge)
			return outcomeSkipped, nil
		}
		if err := s.machine.Suspend(ctx, res, model.ReasonInsufficientCoins, lifecycle.SystemActor); err != nil && !errors.Is(err, lifecycle.ErrAlreadySuspended) {
			return outcomeSkipped, fmt.Errorf("suspend for insufficient coins: %w", err)
		}
		return outcomeSuspended, nil
	default:
		return outcomeSkipped, fmt.Errorf("debit %d coins from %s: %w", charge, res.AccountID, err)
	}
}

func (s *Scheduler) policyViolation(account model.Account) (model.SuspendReason, bool) {
	if account.BillingExempt() {
		return "", false
	}
	if account.Banned {
		return model.ReasonAccountBanned, true
	}
	if !account.DiscordLinked {
		return model.ReasonDiscordNotLinked, true
	}
	return "", false
}

// terminateExpired removes resources suspended continuously past the
// grace period, whatever the suspend reason.
func (s *Scheduler) terminateExpired(ctx context.Context, cfg model.BillingConfig, suspendedList []model.Resource) map[string]struct{} {
	grace := time.Duration(cfg.GraceDays) * 24 * time.Hour
	now := s.nowFn()
	terminated := make(map[string]struct{})
	for _, res := range suspendedList {
		if res.SuspendedAt == nil || now.Sub(*res.SuspendedAt) <= grace {
			continue
		}
		res := res
		s.guarded(res.ID, func() error {
			if err := s.machine.Terminate(ctx, res, lifecycle.SystemActor); err != nil {
				return fmt.Errorf("grace-period terminate: %w", err)
			}
			terminated[res.ID] = struct{}{}
			return nil
		})
	}
	return terminated
}

// resumeFunded re-activates resources suspended for insufficient coins
// once the owner's balance covers one further interval at current size.
func (s *Scheduler) resumeFunded(ctx context.Context, cfg model.BillingConfig, suspendedList []model.Resource, terminated map[string]struct{}) int {
	resumed := 0
	for _, res := range suspendedList {
		if res.SuspendReason != model.ReasonInsufficientCoins {
			continue
		}
		if _, gone := terminated[res.ID]; gone {
			continue
		}
		res := res
		s.guarded(res.ID, func() error {
			cost := cfg.ChargeFor(res.BillableUnits())
			balance, err := s.ledger.Balance(ctx, res.AccountID)
			if err != nil {
				return fmt.Errorf("balance for auto-resume: %w", err)
			}
			if balance < cost {
				return nil
			}
			if err := s.machine.Resume(ctx, res, lifecycle.SystemActor); err != nil && !errors.Is(err, lifecycle.ErrNotSuspended) {
				return fmt.Errorf("auto-resume: %w", err)
			}
			resumed++
			return nil
		})
	}
	return resumed
}
