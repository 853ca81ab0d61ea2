package resilience

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy drives the retry-with-backoff wrapper. Zero values fall
// back to the defaults used for control plane calls.
type RetryPolicy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = 4 * time.Second
	}
	return p
}

// Retry runs fn with exponential backoff until it succeeds, exhausts the
// attempts, or fails with an error marked Permanent. Transient faults
// (timeouts, 5xx) retry; client/validation errors do not.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	p := policy.normalized()
	backoff := retry.WithCappedDuration(p.MaxDelay, retry.NewExponential(p.BaseDelay))
	backoff = retry.WithMaxRetries(p.MaxAttempts-1, backoff)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}
