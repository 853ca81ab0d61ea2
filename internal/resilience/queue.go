package resilience

import (
	"context"
	"time"
)

// Queue caps the number of outbound calls in flight. Callers beyond the
// cap wait for a slot in arrival order; the wait has its own timeout,
// independent of the per-call timeout applied once the slot is held.
type Queue struct {
	slots       chan struct{}
	waitTimeout time.Duration
	callTimeout time.Duration
}

func NewQueue(limit int, waitTimeout, callTimeout time.Duration) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{
		slots:       make(chan struct{}, limit),
		waitTimeout: waitTimeout,
		callTimeout: callTimeout,
	}
}

// Do admits the call when a slot frees up and runs it under the per-call
// timeout. Returns ErrQueueTimeout if no slot frees within the wait
// timeout, or the caller's context error if that fires first.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	waitCtx := ctx
	if q.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, q.waitTimeout)
		defer cancel()
	}
	select {
	case q.slots <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrQueueTimeout
	}
	defer func() { <-q.slots }()

	callCtx := ctx
	if q.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, q.callTimeout)
		defer cancel()
	}
	return fn(callCtx)
}

// InFlight returns the number of slots currently held, for tests and
// health reporting.
func (q *Queue) InFlight() int {
	return len(q.slots)
}
