package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a thin key/value cache over go-redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// GetMulti returns only the keys that were present.
func (c *RedisCache) GetMulti(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}

	values, err := c.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		if s, ok := values[i].(string); ok {
			result[key] = s
		}
	}
	return result, nil
}

// SetMulti writes all items in one pipeline.
func (c *RedisCache) SetMulti(ctx context.Context, items map[string]string, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for key, value := range items {
		pipe.Set(ctx, c.key(key), value, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
