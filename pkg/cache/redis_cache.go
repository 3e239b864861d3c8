package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

// RedisCache implements Cache on Redis so cached search results and
// recommendations are shared across instances.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects a cache namespace on the given Redis server.
func NewRedisCache(addr, password, prefix string) *RedisCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "soniclibrary:cache"
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
	}
}

func (c *RedisCache) key(key string) string {
	return c.prefix + ":" + key
}

// Get fetches a cached value. Redis failures degrade to a cache miss.
func (c *RedisCache) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	value, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		return "", false
	}
	return value, true
}

// Set stores a value with a TTL. Failures are ignored; the cache is advisory.
func (c *RedisCache) Set(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	_ = c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// Delete drops a single entry.
func (c *RedisCache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	_ = c.client.Del(ctx, c.key(key)).Err()
}

// DeletePrefix drops every entry under prefix using SCAN.
func (c *RedisCache) DeletePrefix(prefix string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	pattern := c.key(prefix) + "*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	keys := make([]string, 0, 16)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_ = c.client.Del(ctx, keys...).Err()
	}
}
