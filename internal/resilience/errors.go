package resilience

import "errors"

var (
	// ErrQueueTimeout means the call never got a slot: the queue-wait
	// timeout fired before a concurrency slot freed up.
	ErrQueueTimeout = errors.New("request queue wait timed out")

	// ErrCircuitOpen means the endpoint's breaker rejected the call
	// without attempting it.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// permanentError marks a failure that retrying cannot fix (client or
// validation errors from the control plane).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the retry layer gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (anywhere in its chain) was marked
// non-retryable.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
