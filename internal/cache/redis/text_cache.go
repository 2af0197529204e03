package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TextCache stores generated text under a key prefix.
//
// Key schema:
//
//	<prefix>:{key} - string value with TTL
type TextCache struct {
	rdb    *redis.Client
	prefix string
}

// NewTextCache creates a TextCache. An empty prefix uses "commentary".
func NewTextCache(c *Client, prefix string) *TextCache {
	if prefix == "" {
		prefix = "commentary"
	}
	return &TextCache{rdb: c.Underlying(), prefix: prefix}
}

func (tc *TextCache) key(k string) string { return tc.prefix + ":" + k }

// Get returns the cached value and whether it was present.
func (tc *TextCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := tc.rdb.Get(ctx, tc.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value with ttl. Zero ttl keeps the key until evicted.
func (tc *TextCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := tc.rdb.Set(ctx, tc.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}
