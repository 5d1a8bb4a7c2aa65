// Package cache provides the key-value caching layer shared by the
// permission service and the rate limiter. Two backends implement the
// same contract: an in-process map for single-instance deployments and
// Redis for horizontally scaled ones.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/redis/go-redis/v9"

	"github.com/adminkit/adminkit/pkg/config"
	"github.com/adminkit/adminkit/pkg/errors"
	"github.com/adminkit/adminkit/pkg/interfaces"
	"github.com/adminkit/adminkit/pkg/types"
)

// New creates the cache backend selected by configuration. The memory
// backend's sweeper is started here and stopped by Close; the redis
// backend's connectivity is verified before the cache is handed out.
// An unsupported backend name fails at construction.
func New(cfg *config.CacheConfig, logger interfaces.Logger) (interfaces.Cache, error) {
	switch cfg.Backend {
	case types.CacheBackendMemory:
		c := NewMemoryCache(cfg.CleanupInterval, logger)
		c.StartCleanup()
		logger.Info("memory cache initialized", map[string]interface{}{
			"cleanup_interval": cfg.CleanupInterval.String(),
		})
		return c, nil

	case types.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})

		err := retry.Do(
			func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return client.Ping(ctx).Err()
			},
			retry.Attempts(3),
			retry.Delay(500*time.Millisecond),
		)
		if err != nil {
			_ = client.Close()
			return nil, errors.NewCacheUnavailableError("redis", err).
				WithDetail("addr", cfg.Redis.Addr)
		}

		logger.Info("redis cache initialized", map[string]interface{}{
			"addr": cfg.Redis.Addr,
			"db":   cfg.Redis.DB,
		})
		return NewRedisCache(client, logger), nil

	default:
		return nil, errors.NewConfigInvalidError(
			fmt.Sprintf("unsupported cache backend: %s", cfg.Backend))
	}
}
