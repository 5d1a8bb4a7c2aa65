package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adminkit/adminkit/pkg/errors"
	"github.com/adminkit/adminkit/pkg/interfaces"
	"github.com/adminkit/adminkit/pkg/types"
)

// metaKeyPrefix marks the companion key that carries a data key's
// sliding expiration, in milliseconds. Redis has no native sliding
// expiry, so every successful Get re-arms PEXPIRE on both keys from
// the stored value.
const metaKeyPrefix = "cachemeta:"

// RedisCache is a cache backed by a shared Redis instance. Values are
// JSON-serialized; atomicity of Increment is delegated to Redis itself,
// which is what makes counters and invalidation consistent across
// application instances.
type RedisCache struct {
	client *redis.Client
	logger interfaces.Logger
}

// NewRedisCache creates a cache over an established Redis client
func NewRedisCache(client *redis.Client, logger interfaces.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		logger: logger,
	}
}

func metaKey(key string) string {
	return metaKeyPrefix + key
}

// unavailable wraps a connectivity failure so callers can tell it apart
// from a miss
func unavailable(err error) error {
	return errors.NewCacheUnavailableError("redis", err)
}

// Get retrieves a value and re-arms the sliding expiration if one was
// stored for the key
func (c *RedisCache) Get(ctx context.Context, key string) (interface{}, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}

	if err := c.refreshIfSliding(ctx, key); err != nil {
		return nil, err
	}

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		// Not written by this cache; hand back the raw string.
		return raw, nil
	}
	return value, nil
}

// Set stores a JSON-serialized value. With a sliding duration the value
// key and its metadata key share the same expiry; without one, any
// stale metadata key is removed.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, sliding time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.NewSerializationError("failed to serialize cache value", err).WithDetail("key", key)
	}

	if sliding > 0 {
		millis := strconv.FormatInt(sliding.Milliseconds(), 10)
		if err := c.client.Set(ctx, key, data, sliding).Err(); err != nil {
			return unavailable(err)
		}
		if err := c.client.Set(ctx, metaKey(key), millis, sliding).Err(); err != nil {
			return unavailable(err)
		}
		return nil
	}

	if err := c.client.Set(ctx, key, data, 0).Err(); err != nil {
		return unavailable(err)
	}
	if err := c.client.Del(ctx, metaKey(key)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// refreshIfSliding re-arms the native expiry on the data and metadata
// keys when a sliding expiration is stored
func (c *RedisCache) refreshIfSliding(ctx context.Context, key string) error {
	raw, err := c.client.Get(ctx, metaKey(key)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return unavailable(err)
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}

	sliding := time.Duration(millis) * time.Millisecond
	if err := c.client.PExpire(ctx, key, sliding).Err(); err != nil {
		return unavailable(err)
	}
	if err := c.client.PExpire(ctx, metaKey(key), sliding).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Refresh re-arms the expiration timer without touching the value
func (c *RedisCache) Refresh(ctx context.Context, key string) (bool, error) {
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err)
	}
	if exists == 0 {
		return false, nil
	}

	if err := c.refreshIfSliding(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes a key and its expiration metadata
func (c *RedisCache) Remove(ctx context.Context, key string) (bool, error) {
	deleted, err := c.client.Del(ctx, key, metaKey(key)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return deleted > 0, nil
}

// Exists reports whether a key is present
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return count > 0, nil
}

// Clear flushes the whole database. Every namespace sharing this
// backend is wiped, including rate limit counters.
func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Increment maps to INCRBY; the ttl is applied only when the returned
// value equals delta, meaning this call created the key
func (c *RedisCache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	value, err := c.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	if ttl > 0 && value == delta {
		if err := c.client.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, unavailable(err)
		}
	}
	return value, nil
}

// Stats reports key counts and connectivity for the Redis backend
func (c *RedisCache) Stats(ctx context.Context) (types.CacheStats, error) {
	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	connected := c.client.Ping(ctx).Err() == nil

	return types.CacheStats{
		"type":       "redis",
		"total_keys": size,
		"connected":  connected,
	}, nil
}

// Close closes the underlying Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ interfaces.Cache = (*RedisCache)(nil)
