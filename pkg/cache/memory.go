package cache

import (
	"context"
	"sync"
	"time"

	"github.com/adminkit/adminkit/pkg/errors"
	"github.com/adminkit/adminkit/pkg/interfaces"
	"github.com/adminkit/adminkit/pkg/types"
)

// entry is a cached item with sliding expiration metadata. Owned by the
// MemoryCache map; every read under the lock may mutate lastAccessed.
type entry struct {
	value        interface{}
	sliding      time.Duration // 0 means no expiration
	counter      bool          // created by Increment; expires relative to first write, reads never re-arm
	lastAccessed time.Time
}

// expired reports whether the entry has been idle longer than its
// sliding expiration. Entries without an expiration never expire.
func (e *entry) expired(now time.Time) bool {
	if e.sliding == 0 {
		return false
	}
	return now.Sub(e.lastAccessed) > e.sliding
}

// MemoryCache is an in-process cache guarded by a single mutex. A
// background sweeper removes expired entries periodically; reads also
// purge expired entries lazily, so the sweeper is cleanup, not
// correctness.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*entry

	cleanupInterval time.Duration
	cleanupCancel   context.CancelFunc
	cleanupDone     chan struct{}

	sweeps int64
	now    types.Clock
	logger interfaces.Logger
}

// NewMemoryCache creates a new in-process cache. The sweeper is not
// running until StartCleanup is called.
func NewMemoryCache(cleanupInterval time.Duration, logger interfaces.Logger) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = 60 * time.Second
	}
	return &MemoryCache{
		entries:         make(map[string]*entry),
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		logger:          logger,
	}
}

// StartCleanup launches the background sweep goroutine. Idempotent.
func (c *MemoryCache) StartCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cleanupCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cleanupCancel = cancel
	c.cleanupDone = make(chan struct{})

	go c.cleanupLoop(ctx, c.cleanupDone)
}

// StopCleanup cancels the sweep goroutine and waits for it to exit.
// Safe to call when the sweeper was never started.
func (c *MemoryCache) StopCleanup() {
	c.mu.Lock()
	cancel := c.cleanupCancel
	done := c.cleanupDone
	c.cleanupCancel = nil
	c.cleanupDone = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *MemoryCache) cleanupLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := c.removeExpired()
			if removed > 0 && c.logger != nil {
				c.logger.Debug("cache sweep removed expired entries", map[string]interface{}{
					"removed": removed,
				})
			}
		}
	}
}

// removeExpired drops every expired entry. The critical section is one
// pass over the map so foreground calls are not starved.
func (c *MemoryCache) removeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.sweeps++
	return removed
}

// Get retrieves a value, refreshing the sliding expiration on hit.
// An expired entry is purged and reported as a miss.
func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}

	now := c.now()
	if e.expired(now) {
		delete(c.entries, key)
		return nil, nil
	}

	// Counters keep a fixed TTL, matching the Redis backend where no
	// expiration metadata exists for INCRBY-created keys.
	if !e.counter {
		e.lastAccessed = now
	}
	return e.value, nil
}

// Set stores a value, replacing both the previous value and its
// expiration policy.
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, sliding time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:        value,
		sliding:      sliding,
		lastAccessed: c.now(),
	}
	return nil
}

// Refresh re-arms the expiration timer without touching the value
func (c *MemoryCache) Refresh(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}

	now := c.now()
	if e.expired(now) {
		delete(c.entries, key)
		return false, nil
	}

	if !e.counter {
		e.lastAccessed = now
	}
	return true, nil
}

// Remove deletes a key, reporting whether it existed
func (c *MemoryCache) Remove(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false, nil
	}
	delete(c.entries, key)
	return true, nil
}

// Exists reports whether a key is present and unexpired. Does not
// refresh the sliding expiration.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return false, nil
	}
	return true, nil
}

// Clear drops all entries
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	return nil
}

// Increment atomically adds delta to the counter at key. A ttl is
// applied only when this call creates the key; later increments leave
// the original expiration in place.
func (c *MemoryCache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[key]
	if ok && e.expired(now) {
		delete(c.entries, key)
		ok = false
	}

	if !ok {
		c.entries[key] = &entry{
			value:        delta,
			sliding:      ttl,
			counter:      true,
			lastAccessed: now,
		}
		return delta, nil
	}

	current, isCounter := e.value.(int64)
	if !isCounter {
		return 0, errors.NewInvalidInputError("cached value is not a counter").WithDetail("key", key)
	}

	// Deliberately does not touch lastAccessed: the key keeps expiring
	// relative to its first write.
	current += delta
	e.value = current
	return current, nil
}

// Stats returns entry counts for the in-process backend
func (c *MemoryCache) Stats(ctx context.Context) (types.CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	total := len(c.entries)
	expired := 0
	for _, e := range c.entries {
		if e.expired(now) {
			expired++
		}
	}

	return types.CacheStats{
		"type":            "memory",
		"total_entries":   total,
		"active_entries":  total - expired,
		"expired_entries": expired,
		"sweeps":          c.sweeps,
	}, nil
}

// Close stops the sweeper and releases the map
func (c *MemoryCache) Close() error {
	c.StopCleanup()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	return nil
}

var _ interfaces.Cache = (*MemoryCache)(nil)
