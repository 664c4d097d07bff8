package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a caller may proceed. Implementations must be
// safe for concurrent use.
type Limiter interface {
	Limit(ctx context.Context, bucket, key string) (bool, error)
}

// RedisLimiter is a fixed-window counter per (bucket, key).
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing max hits per window
func NewRedisLimiter(client *redis.Client, max int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: max, window: window}
}

// Limit increments the window counter and reports whether the caller is
// still within the allowance. The increment and expiry are a single
// round trip so concurrent callers see a consistent count.
func (l *RedisLimiter) Limit(ctx context.Context, bucket, key string) (bool, error) {
	fullKey := fmt.Sprintf("ratelimit:%s:%s", bucket, key)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check for %s: %w", fullKey, err)
	}

	return incr.Val() <= l.max, nil
}
