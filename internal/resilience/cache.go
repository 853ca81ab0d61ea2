package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Cache is a read-through cache with stale-while-error semantics: entries
// carry a soft expiry inside the stored envelope, and the physical TTL is
// extended by a retention window. A fetch failure on an expired entry
// serves the stale payload instead of propagating the error.
type Cache struct {
	kv        KV
	prefix    string
	retention time.Duration
	nowFn     func() time.Time
}

type cacheEnvelope struct {
	Payload json.RawMessage `json:"payload"`
	StaleAt time.Time       `json:"stale_at"`
}

type CacheOption func(*Cache)

// WithCacheClock injects a deterministic clock for tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.nowFn = now }
}

// WithStaleRetention sets how long past the soft TTL a stale value stays
// available for the error fallback.
func WithStaleRetention(d time.Duration) CacheOption {
	return func(c *Cache) { c.retention = d }
}

func NewCache(kv KV, prefix string, opts ...CacheOption) *Cache {
	c := &Cache{
		kv:        kv,
		prefix:    prefix,
		retention: time.Hour,
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) fullKey(key string) string {
	return c.prefix + key
}

// Cached resolves key through cache: fresh hit returns immediately, a miss
// or expired entry calls fetch and stores the result. If fetch fails and
// an expired entry is still retained, the stale value is served.
func Cached[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	fullKey := c.fullKey(key)
	now := c.nowFn()

	var stale *cacheEnvelope
	raw, found, err := c.kv.Get(ctx, fullKey)
	if err != nil {
		slog.Warn("cache read failed, falling through to fetch", "key", fullKey, "error", err)
	} else if found {
		var env cacheEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Warn("cache entry corrupt, discarding", "key", fullKey, "error", err)
		} else if now.Before(env.StaleAt) {
			var value T
			if err := json.Unmarshal(env.Payload, &value); err != nil {
				return zero, fmt.Errorf("decode cached value %s: %w", fullKey, err)
			}
			return value, nil
		} else {
			stale = &env
		}
	}

	value, fetchErr := fetch(ctx)
	if fetchErr != nil {
		if stale != nil {
			var staleValue T
			if err := json.Unmarshal(stale.Payload, &staleValue); err == nil {
				slog.Warn("fetch failed, serving stale cache entry", "key", fullKey, "error", fetchErr)
				return staleValue, nil
			}
		}
		return zero, fetchErr
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("encode cache value %s: %w", fullKey, err)
	}
	env, err := json.Marshal(cacheEnvelope{Payload: payload, StaleAt: now.Add(ttl)})
	if err != nil {
		return zero, fmt.Errorf("encode cache envelope %s: %w", fullKey, err)
	}
	if err := c.kv.Set(ctx, fullKey, env, ttl+c.retention); err != nil {
		// Store failures degrade to uncached behavior.
		slog.Warn("cache write failed", "key", fullKey, "error", err)
	}
	return value, nil
}

// Invalidate removes exact keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	return c.kv.Delete(ctx, full...)
}

// InvalidatePattern removes every key matching the glob pattern (relative
// to the cache prefix).
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) error {
	return c.kv.DeleteByPattern(ctx, c.fullKey(pattern))
}

// Clear drops everything under the cache prefix.
func (c *Cache) Clear(ctx context.Context) error {
	return c.kv.DeleteByPattern(ctx, c.prefix+"*")
}
