package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminkit/adminkit/pkg/logger"
)

// fakeClock lets tests move time forward without sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache() (*MemoryCache, *fakeClock) {
	c := NewMemoryCache(60*time.Second, logger.NewTestLogger())
	clock := newFakeClock()
	c.now = clock.Now
	return c, clock
}

func TestMemoryCache_SetGet(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))

	value, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestMemoryCache_GetMiss(t *testing.T) {
	c, _ := newTestCache()

	value, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestMemoryCache_SlidingExpiration(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Second))

	// Reads spaced under the expiration keep the key alive.
	for i := 0; i < 5; i++ {
		clock.Advance(8 * time.Second)
		value, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", value, "read %d should hit", i)
	}

	// A single idle period beyond the expiration evicts it.
	clock.Advance(11 * time.Second)
	value, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, value)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists, "expired entry should have been purged")
}

func TestMemoryCache_NoExpiration(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 42, 0))

	clock.Advance(1000 * time.Hour)
	c.removeExpired()

	value, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestMemoryCache_SetOverwritesPolicy(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v1", 5*time.Second))
	require.NoError(t, c.Set(ctx, "k", "v2", 0))

	clock.Advance(time.Hour)
	value, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", value)
}

func TestMemoryCache_Refresh(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Second))

	clock.Advance(8 * time.Second)
	ok, err := c.Refresh(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	// The refresh restarted the timer, so 8 more seconds is still a hit.
	clock.Advance(8 * time.Second)
	value, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestMemoryCache_RefreshExpired(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Second))
	clock.Advance(11 * time.Second)

	ok, err := c.Refresh(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_RefreshAbsent(t *testing.T) {
	c, _ := newTestCache()

	ok, err := c.Refresh(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Remove(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))

	removed, err := c.Remove(ctx, "k")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.Remove(ctx, "k")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMemoryCache_Clear(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	require.NoError(t, c.Clear(ctx))

	for _, key := range []string{"a", "b"} {
		exists, err := c.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists)
	}
}

func TestMemoryCache_IncrementFresh(t *testing.T) {
	c, _ := newTestCache()

	value, err := c.Increment(context.Background(), "counter", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
}

func TestMemoryCache_IncrementConcurrent(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Increment(ctx, "counter", 1, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	value, err := c.Increment(ctx, "counter", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(n), value, "no increments may be lost")
}

func TestMemoryCache_IncrementFirstWriteTTL(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	value, err := c.Increment(ctx, "counter", 1, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	clock.Advance(8 * time.Second)
	value, err = c.Increment(ctx, "counter", 1, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)

	// The second increment did not reset the TTL: the key still dies
	// relative to the first write.
	clock.Advance(3 * time.Second)
	exists, err := c.Exists(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, exists)

	// A later increment starts a fresh counter.
	value, err = c.Increment(ctx, "counter", 1, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
}

func TestMemoryCache_GetDoesNotExtendCounterTTL(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	_, err := c.Increment(ctx, "counter", 1, 10*time.Second)
	require.NoError(t, err)

	// Peeking at the counter must not push its expiration out; it
	// still dies relative to the first write, as on Redis.
	for i := 0; i < 3; i++ {
		clock.Advance(3 * time.Second)
		value, err := c.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1), value)
	}

	clock.Advance(2 * time.Second)
	value, err := c.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestMemoryCache_IncrementNonCounter(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "not a number", 0))

	_, err := c.Increment(ctx, "k", 1, 0)
	assert.Error(t, err)
}

func TestMemoryCache_SweepRemovesExpired(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "expiring", "v", 5*time.Second))
	require.NoError(t, c.Set(ctx, "permanent", "v", 0))

	clock.Advance(10 * time.Second)
	removed := c.removeExpired()
	assert.Equal(t, 1, removed)

	exists, err := c.Exists(ctx, "permanent")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryCache_CleanupLifecycle(t *testing.T) {
	c := NewMemoryCache(10*time.Millisecond, logger.NewTestLogger())

	// Start is idempotent; stop waits for the goroutine and can be
	// followed by another start/stop cycle.
	c.StartCleanup()
	c.StartCleanup()
	c.StopCleanup()
	c.StopCleanup()

	c.StartCleanup()
	require.NoError(t, c.Close())
}

func TestMemoryCache_Stats(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 5*time.Second))
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	clock.Advance(10 * time.Second)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats["type"])
	assert.Equal(t, 2, stats["total_entries"])
	assert.Equal(t, 1, stats["active_entries"])
	assert.Equal(t, 1, stats["expired_entries"])
}
