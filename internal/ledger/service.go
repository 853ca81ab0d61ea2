package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"panelbill/internal/model"
)

// Store is the persistence the ledger needs. The production implementation
// is the pgx-backed repository; tests inject a fake.
type Store interface {
	CreditBalance(ctx context.Context, accountID string, amount int64) (balanceAfter int64, err error)
	DebitBalance(ctx context.Context, accountID string, amount int64) (balanceAfter int64, err error)
	InsertEntry(ctx context.Context, e *model.LedgerEntry) error
	AccountBalance(ctx context.Context, accountID string) (int64, error)
	Entries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error)
	EntrySums(ctx context.Context, accountID string) (credits, debits int64, err error)
	InTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
}

// Publisher receives a best-effort event for every committed entry.
type Publisher interface {
	LedgerEntryCreated(ctx context.Context, ev model.LedgerEntryCreatedEvent)
}

// Service is the single write path to account balances. It is shared by
// the billing scheduler and by every interactive spend path, so both
// mutations funnel through the same atomic conditional decrement.
type Service struct {
	store Store
	pub   Publisher
	nowFn func() time.Time
}

type Option func(*Service)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.nowFn = now }
}

// WithPublisher wires the entry-created event sink.
func WithPublisher(pub Publisher) Option {
	return func(s *Service) { s.pub = pub }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, nowFn: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credit increments the balance and appends the entry in one transaction.
// Credits have no upper bound; a missing account is the only failure.
func (s *Service) Credit(ctx context.Context, accountID string, amount int64, description string, meta map[string]any) (*model.LedgerEntry, error) {
	return s.apply(ctx, accountID, model.DirectionCredit, amount, description, meta, "")
}

// CreditIdempotent is Credit with a dedupe key: a second call with the
// same key returns ErrDuplicateEntry and moves no funds.
func (s *Service) CreditIdempotent(ctx context.Context, accountID string, amount int64, description string, meta map[string]any, idempotencyKey string) (*model.LedgerEntry, error) {
	return s.apply(ctx, accountID, model.DirectionCredit, amount, description, meta, idempotencyKey)
}

// Debit decrements the balance if and only if it covers the amount,
// appending the entry in the same transaction. ErrInsufficientFunds is an
// expected outcome: no entry is written and nothing changes.
func (s *Service) Debit(ctx context.Context, accountID string, amount int64, description string, meta map[string]any) (*model.LedgerEntry, error) {
	return s.apply(ctx, accountID, model.DirectionDebit, amount, description, meta, "")
}

func (s *Service) apply(ctx context.Context, accountID string, direction model.EntryDirection, amount int64, description string, meta map[string]any, idempotencyKey string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	entry := &model.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Direction:      direction,
		Amount:         amount,
		Description:    description,
		Metadata:       meta,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      s.nowFn().UTC(),
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		var (
			balanceAfter int64
			err          error
		)
		switch direction {
		case model.DirectionCredit:
			balanceAfter, err = tx.CreditBalance(ctx, accountID, amount)
		case model.DirectionDebit:
			balanceAfter, err = tx.DebitBalance(ctx, accountID, amount)
		}
		if err != nil {
			return err
		}
		// balance_after comes from the mutation's own return value; a
		// separately-read snapshot could be stale under concurrency.
		entry.BalanceAfter = balanceAfter
		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, entry)
	return entry, nil
}

// Balance returns the committed balance of an account.
func (s *Service) Balance(ctx context.Context, accountID string) (int64, error) {
	return s.store.AccountBalance(ctx, accountID)
}

// History returns the newest entries first.
func (s *Service) History(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.Entries(ctx, accountID, limit, offset)
}

// Reconcile checks the invariant balance == sum(credits) - sum(debits) and
// returns the drift (zero when the ledger is consistent).
func (s *Service) Reconcile(ctx context.Context, accountID string) (int64, error) {
	var drift int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		balance, err := tx.AccountBalance(ctx, accountID)
		if err != nil {
			return err
		}
		credits, debits, err := tx.EntrySums(ctx, accountID)
		if err != nil {
			return err
		}
		drift = balance - (credits - debits)
		return nil
	})
	return drift, err
}

func (s *Service) publish(ctx context.Context, entry *model.LedgerEntry) {
	if s.pub == nil {
		return
	}
	s.pub.LedgerEntryCreated(ctx, model.LedgerEntryCreatedEvent{
		EntryID:      entry.ID,
		AccountID:    entry.AccountID,
		Direction:    entry.Direction,
		Amount:       entry.Amount,
		BalanceAfter: entry.BalanceAfter,
		CreatedAt:    entry.CreatedAt,
	})
	slog.Debug("ledger entry recorded",
		"account_id", entry.AccountID,
		"direction", string(entry.Direction),
		"amount", entry.Amount,
		"balance_after", entry.BalanceAfter,
	)
}
