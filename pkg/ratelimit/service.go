// Package ratelimit provides fixed-window rate limiting on top of the
// cache layer's atomic increment.
//
// Windows are calendar-aligned: every request between windowStart and
// windowStart+window shares one counter, so a client can burst across a
// window boundary up to twice the limit. That is the documented
// tradeoff of the fixed-window algorithm, accepted here for its
// single-command hot path.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/adminkit/adminkit/pkg/interfaces"
	"github.com/adminkit/adminkit/pkg/types"
)

// CacheKeyPrefix namespaces rate limit counters
const CacheKeyPrefix = "ratelimit"

// Service implements fixed-window rate limiting. Counters live in the
// shared cache backend, which makes limits consistent across instances
// when the backend is Redis.
type Service struct {
	cache       interfaces.Cache
	maxRequests int64
	window      time.Duration
	now         types.Clock
	logger      interfaces.Logger
}

// NewService creates a rate limiter with the given global limit
func NewService(c interfaces.Cache, maxRequests int64, window time.Duration, logger interfaces.Logger) *Service {
	return &Service{
		cache:       c,
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		logger:      logger,
	}
}

// windowKey computes the counter key for the window containing now,
// plus the unix second at which that window resets. Windows are
// aligned on whole seconds, so anything under one second is widened
// to the one-second minimum.
func (s *Service) windowKey(key string, window time.Duration) (string, int64) {
	windowSecs := int64(window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}
	nowSecs := s.now().Unix()
	windowStart := (nowSecs / windowSecs) * windowSecs
	cacheKey := fmt.Sprintf("%s:%s:%d", CacheKeyPrefix, key, windowStart)
	return cacheKey, windowStart + windowSecs
}

// Check counts a request against the globally configured limit
func (s *Service) Check(ctx context.Context, key string) (types.RateLimitResult, error) {
	return s.CheckCustom(ctx, key, s.maxRequests, s.window)
}

// CheckCustom counts a request against a caller-supplied limit, used
// for per-route limits distinct from the global default. A backend
// failure propagates unchanged; the caller decides whether that fails
// the request open or closed.
func (s *Service) CheckCustom(ctx context.Context, key string, maxRequests int64, window time.Duration) (types.RateLimitResult, error) {
	cacheKey, resetAt := s.windowKey(key, window)

	// TTL gets one second of grace past the window so a counter never
	// outlives its usefulness but also never dies early.
	count, err := s.cache.Increment(ctx, cacheKey, 1, window+time.Second)
	if err != nil {
		return types.RateLimitResult{}, err
	}

	limited := count > maxRequests
	remaining := maxRequests - count
	if remaining < 0 {
		remaining = 0
	}

	var retryAfter int64
	if limited {
		retryAfter = resetAt - s.now().Unix()
		if retryAfter < 0 {
			retryAfter = 0
		}
	}

	return types.RateLimitResult{
		Limited:    limited,
		Limit:      maxRequests,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}, nil
}

// CurrentCount peeks at the current window's counter without
// incrementing it. Returns 0 when no requests have been counted yet.
func (s *Service) CurrentCount(ctx context.Context, key string) (int64, error) {
	cacheKey, _ := s.windowKey(key, s.window)

	value, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, nil
	}

	switch v := value.(type) {
	case int64:
		return v, nil
	case float64:
		// Counters read back through the JSON-serializing backend.
		return int64(v), nil
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, nil
		}
		return 0, nil
	default:
		return 0, nil
	}
}

// Reset removes the counter for the current window only. Earlier
// windows expire on their own.
func (s *Service) Reset(ctx context.Context, key string) (bool, error) {
	cacheKey, _ := s.windowKey(key, s.window)
	return s.cache.Remove(ctx, cacheKey)
}

var _ interfaces.RateLimiter = (*Service)(nil)
