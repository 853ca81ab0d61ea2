package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSet holds one circuit breaker per logical endpoint, created
// lazily. State is scoped to the set: constructing a fresh set resets
// every breaker, which is how tests isolate themselves.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]

	failureThreshold uint32
	cooldown         time.Duration
}

// NewBreakerSet builds a set whose breakers open after failureThreshold
// consecutive failures and reject calls for the cooldown window before
// allowing a fresh trial.
func NewBreakerSet(failureThreshold uint32, cooldown time.Duration) *BreakerSet {
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	if cooldown == 0 {
		cooldown = time.Minute
	}
	return &BreakerSet{
		breakers:         make(map[string]*gobreaker.CircuitBreaker[struct{}]),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

func (s *BreakerSet) breaker(endpoint string) *gobreaker.CircuitBreaker[struct{}] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[endpoint]; ok {
		return cb
	}
	threshold := s.failureThreshold
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1,
		Timeout:     s.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change",
				"endpoint", name, "from", from.String(), "to", to.String())
		},
	})
	s.breakers[endpoint] = cb
	return cb
}

// Do runs fn under the endpoint's breaker. While the breaker is open the
// call fails immediately with ErrCircuitOpen and fn is never invoked.
func (s *BreakerSet) Do(endpoint string, fn func() error) error {
	_, err := s.breaker(endpoint).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State exposes the breaker state for health reporting.
func (s *BreakerSet) State(endpoint string) string {
	return s.breaker(endpoint).State().String()
}
