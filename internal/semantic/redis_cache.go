package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gzhole/textgate/internal/signal"
)

// RedisClient is the subset of *redis.Client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

const redisKeyPrefix = "textgate:semantic:"

// RedisCache shares judgements across processes. Redis enforces the TTL with
// SET ... EX, so expired entries are never returned.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client RedisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// DialRedis connects to addr and verifies it with PING.
func DialRedis(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	return NewRedisCache(rdb, ttl), nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (signal.Verdict, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return signal.Verdict{}, false, nil
	}
	if err != nil {
		return signal.Verdict{}, false, fmt.Errorf("redis get: %w", err)
	}
	var v signal.Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return signal.Verdict{}, false, fmt.Errorf("decode cached verdict: %w", err)
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, v signal.Verdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
