package settings

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "mblog:settings:"

// Cache is the read-through layer in front of the settings table.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisCache stores effective setting values in Redis.
type RedisCache struct {
	client *redis.Client
}

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// NewRedisCache wraps a connected client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached value of key; a miss reports false without an error.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, cacheKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set caches value under key for ttl.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, cacheKeyPrefix+key, value, ttl).Err()
}

// Delete evicts keys. Absent keys are ignored.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, cacheKeyPrefix+key)
	}
	return c.client.Del(ctx, prefixed...).Err()
}
