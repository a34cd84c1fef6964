package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache remembers recently extracted URLs across runs. It is an
// optional layer in front of the run-scoped seen set: within the TTL a URL
// is not re-dispatched even by a fresh run.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisCache{client: rdb, ttl: ttl}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Mark records a URL as extracted, with the configured TTL.
func (c *RedisCache) Mark(ctx context.Context, url string) error {
	key := fmt.Sprintf("crawled:%s", url)
	return c.client.Set(ctx, key, "1", c.ttl).Err()
}

// Seen checks whether a URL was extracted within the TTL.
func (c *RedisCache) Seen(ctx context.Context, url string) (bool, error) {
	key := fmt.Sprintf("crawled:%s", url)
	val, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}
