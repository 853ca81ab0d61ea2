package controlplane

import (
	"context"
	"errors"
	"time"

	"panelbill/internal/resilience"
)

// Endpoint names keying the per-endpoint circuit breakers.
const (
	endpointLiveness = "controlplane.liveness"
	endpointSuspend  = "controlplane.suspend"
	endpointResume   = "controlplane.resume"
	endpointDelete   = "controlplane.delete"
)

// Resilient wraps a Client so every call passes through the bounded
// queue, the endpoint's circuit breaker and the retry policy, in that
// order. Liveness reads are additionally served through the read-through
// cache with a short TTL, so a control plane blip inside the TTL window
// serves the last known answer.
type Resilient struct {
	client      Client
	queue       *resilience.Queue
	breakers    *resilience.BreakerSet
	retry       resilience.RetryPolicy
	cache       *resilience.Cache
	livenessTTL time.Duration
}

type ResilientOption func(*Resilient)

// WithLivenessCache enables caching of liveness answers.
func WithLivenessCache(cache *resilience.Cache, ttl time.Duration) ResilientOption {
	return func(r *Resilient) {
		r.cache = cache
		r.livenessTTL = ttl
	}
}

// WithRetryPolicy overrides the default backoff policy.
func WithRetryPolicy(policy resilience.RetryPolicy) ResilientOption {
	return func(r *Resilient) { r.retry = policy }
}

func NewResilient(client Client, queue *resilience.Queue, breakers *resilience.BreakerSet, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		client:      client,
		queue:       queue,
		breakers:    breakers,
		retry:       resilience.DefaultRetryPolicy(),
		livenessTTL: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// call composes the layers. The breaker sits inside the retry loop so
// each attempt counts toward its consecutive-failure threshold; an open
// breaker is marked permanent because backing off for seconds cannot
// outlast the cooldown window.
func (r *Resilient) call(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	return r.queue.Do(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, r.retry, func(ctx context.Context) error {
			err := r.breakers.Do(endpoint, func() error {
				err := fn(ctx)
				if IsClientFault(err) {
					return resilience.Permanent(err)
				}
				return err
			})
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return resilience.Permanent(err)
			}
			return err
		})
	})
}

func (r *Resilient) CheckLiveness(ctx context.Context, instanceRef string) (bool, error) {
	fetch := func(ctx context.Context) (bool, error) {
		var online bool
		err := r.call(ctx, endpointLiveness, func(ctx context.Context) error {
			var callErr error
			online, callErr = r.client.CheckLiveness(ctx, instanceRef)
			return callErr
		})
		return online, err
	}
	if r.cache == nil {
		return fetch(ctx)
	}
	return resilience.Cached(ctx, r.cache, "liveness:"+instanceRef, r.livenessTTL, fetch)
}

func (r *Resilient) Suspend(ctx context.Context, instanceRef string) error {
	return r.call(ctx, endpointSuspend, func(ctx context.Context) error {
		return r.client.Suspend(ctx, instanceRef)
	})
}

func (r *Resilient) Resume(ctx context.Context, instanceRef string) error {
	return r.call(ctx, endpointResume, func(ctx context.Context) error {
		return r.client.Resume(ctx, instanceRef)
	})
}

func (r *Resilient) Delete(ctx context.Context, instanceRef string) error {
	err := r.call(ctx, endpointDelete, func(ctx context.Context) error {
		return r.client.Delete(ctx, instanceRef)
	})
	if err == nil && r.cache != nil {
		// The instance is gone; drop any cached liveness answer for it.
		_ = r.cache.Invalidate(ctx, "liveness:"+instanceRef)
	}
	return err
}
