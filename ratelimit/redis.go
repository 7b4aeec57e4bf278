package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window counter shared by every instance using the same
// Redis server.
type Redis struct {
	client redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
}

// NewRedis allows limit requests per window per key. Keys are namespaced
// with prefix.
func NewRedis(client redis.Cmdable, prefix string, limit int, window time.Duration) *Redis {
	if limit <= 0 {
		limit = 1
	}
	if window < time.Second {
		window = time.Second
	}
	return &Redis{client: client, prefix: prefix, limit: int64(limit), window: window}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", k, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	if count <= l.limit {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ttl %s: %w", k, err)
	}
	if ttl < 0 {
		// The key lost its expiry; restore it so the window ends.
		l.client.Expire(ctx, k, l.window)
		return false, l.window, nil
	}
	return false, ttl, nil
}
