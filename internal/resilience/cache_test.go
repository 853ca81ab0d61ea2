package resilience

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryKV honors TTLs against an injected clock so expiry tests don't
// sleep.
type memoryKV struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	nowFn func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func newMemoryKV(now func() time.Time) *memoryKV {
	return &memoryKV{data: make(map[string]memoryEntry), nowFn: now}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || m.nowFn().After(e.expiresAt) {
		delete(m.data, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memoryEntry{value: value, expiresAt: m.nowFn().Add(ttl)}
	return nil
}

func (m *memoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryKV) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
		}
	}
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCacheForTest(retention time.Duration) (*Cache, *memoryKV, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	kv := newMemoryKV(clock.Now)
	c := NewCache(kv, "test:", WithCacheClock(clock.Now), WithStaleRetention(retention))
	return c, kv, clock
}

func TestCachedFreshHitSkipsFetch(t *testing.T) {
	c, _, _ := newCacheForTest(time.Hour)
	fetches := 0
	fetch := func(ctx context.Context) (string, error) {
		fetches++
		return "value", nil
	}

	got, err := Cached(context.Background(), c, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	got, err = Cached(context.Background(), c, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.Equal(t, 1, fetches, "the second read must come from cache")
}

func TestCachedExpiredEntryRefetches(t *testing.T) {
	c, _, clock := newCacheForTest(time.Hour)
	answers := []string{"old", "new"}
	fetches := 0
	fetch := func(ctx context.Context) (string, error) {
		v := answers[fetches]
		fetches++
		return v, nil
	}

	got, err := Cached(context.Background(), c, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "old", got)

	clock.Advance(2 * time.Minute)

	got, err = Cached(context.Background(), c, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "new", got)
	assert.Equal(t, 2, fetches)
}

func TestCachedServesStaleOnFetchError(t *testing.T) {
	c, _, clock := newCacheForTest(time.Hour)
	fetch := func(ctx context.Context) (string, error) { return "value", nil }

	_, err := Cached(context.Background(), c, "k", time.Minute, fetch)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	got, err := Cached(context.Background(), c, "k", time.Minute, func(ctx context.Context) (string, error) {
		return "", errors.New("upstream down")
	})
	require.NoError(t, err, "stale value must mask the fetch error")
	assert.Equal(t, "value", got)
}

func TestCachedStaleGoneAfterRetention(t *testing.T) {
	c, _, clock := newCacheForTest(10 * time.Minute)
	fetch := func(ctx context.Context) (string, error) { return "value", nil }

	_, err := Cached(context.Background(), c, "k", time.Minute, fetch)
	require.NoError(t, err)

	// Past soft TTL plus the retention window: nothing to fall back to.
	clock.Advance(time.Minute + 10*time.Minute + time.Second)

	upstream := errors.New("upstream down")
	_, err = Cached(context.Background(), c, "k", time.Minute, func(ctx context.Context) (string, error) {
		return "", upstream
	})
	assert.ErrorIs(t, err, upstream)
}

func TestCachedMissWithFetchErrorPropagates(t *testing.T) {
	c, _, _ := newCacheForTest(time.Hour)
	upstream := errors.New("upstream down")
	_, err := Cached(context.Background(), c, "k", time.Minute, func(ctx context.Context) (string, error) {
		return "", upstream
	})
	assert.ErrorIs(t, err, upstream)
}

func TestInvalidateRemovesExactKey(t *testing.T) {
	c, _, _ := newCacheForTest(time.Hour)
	fetches := 0
	fetch := func(ctx context.Context) (int, error) {
		fetches++
		return fetches, nil
	}

	_, err := Cached(context.Background(), c, "k", time.Minute, fetch)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(context.Background(), "k"))

	got, err := Cached(context.Background(), c, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestInvalidatePatternRemovesOnlyMatches(t *testing.T) {
	c, kv, _ := newCacheForTest(time.Hour)
	fetch := func(ctx context.Context) (string, error) { return "v", nil }

	for _, key := range []string{"liveness:a", "liveness:b", "config:rate"} {
		_, err := Cached(context.Background(), c, key, time.Minute, fetch)
		require.NoError(t, err)
	}

	require.NoError(t, c.InvalidatePattern(context.Background(), "liveness:*"))

	_, found, err := kv.Get(context.Background(), "test:liveness:a")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = kv.Get(context.Background(), "test:liveness:b")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = kv.Get(context.Background(), "test:config:rate")
	require.NoError(t, err)
	assert.True(t, found, "non-matching keys must survive")
}

func TestClearDropsPrefixOnly(t *testing.T) {
	c, kv, _ := newCacheForTest(time.Hour)
	fetch := func(ctx context.Context) (string, error) { return "v", nil }

	_, err := Cached(context.Background(), c, "k", time.Minute, fetch)
	require.NoError(t, err)
	require.NoError(t, kv.Set(context.Background(), "other:k", []byte("x"), time.Hour))

	require.NoError(t, c.Clear(context.Background()))

	_, found, err := kv.Get(context.Background(), "test:k")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = kv.Get(context.Background(), "other:k")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCachedCorruptEntryFallsThrough(t *testing.T) {
	c, kv, _ := newCacheForTest(time.Hour)
	require.NoError(t, kv.Set(context.Background(), "test:k", []byte("not json"), time.Hour))

	got, err := Cached(context.Background(), c, "k", time.Minute, func(ctx context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
}
