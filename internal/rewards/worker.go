package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"panelbill/internal/ledger"
	"panelbill/internal/model"
)

// Worker listens for reward events published by the panel (games, tasks,
// promotions) and credits the ledger exactly once per idempotency key.
type Worker struct {
	ledger   Ledger
	natsConn *nats.Conn
}

func NewWorker(lg Ledger, nc *nats.Conn) *Worker {
	return &Worker{ledger: lg, natsConn: nc}
}

// Start subscribes and blocks until ctx is cancelled. QueueSubscribe
// means that with several engine replicas only one worker in the group
// handles each event.
func (w *Worker) Start(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe(model.TopicRewardEarned, "rewards_workers", func(m *nats.Msg) {
		var event model.RewardEarned
		if err := json.Unmarshal(m.Data, &event); err != nil {
			slog.Error("rewards worker: failed to unmarshal event", "error", err)
			return
		}
		w.handle(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("rewards worker: subscribe: %w", err)
	}

	slog.Info("rewards worker is running")
	<-ctx.Done()

	slog.Info("rewards worker shutting down, draining subscription")
	return sub.Drain()
}

// Stop implements the infrastructure.Server interface (no-op, shutdown
// is via ctx).
func (w *Worker) Stop(ctx context.Context) error { return nil }

func (w *Worker) handle(ctx context.Context, event model.RewardEarned) {
	if event.Amount <= 0 || event.AccountID == "" || event.IdempotencyKey == "" {
		slog.Warn("rewards worker: dropping malformed event",
			"account_id", event.AccountID, "amount", event.Amount, "key", event.IdempotencyKey)
		return
	}
	_, err := w.ledger.CreditIdempotent(ctx, event.AccountID, event.Amount,
		"reward: "+event.Source,
		map[string]any{"source": event.Source, "earned_at": event.EarnedAt},
		event.IdempotencyKey,
	)
	switch {
	case errors.Is(err, ledger.ErrDuplicateEntry):
		slog.Debug("rewards worker: duplicate event skipped", "key", event.IdempotencyKey)
	case err != nil:
		slog.Error("rewards worker: failed to credit reward",
			"account_id", event.AccountID, "key", event.IdempotencyKey, "error", err)
	default:
		slog.Info("rewards worker: reward credited",
			"account_id", event.AccountID, "amount", event.Amount, "source", event.Source)
	}
}
