package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"CoinAggregator/internal/ports"
)

const (
	keyPrefix = "rate_limit:"
	// Keys outlive their minute slightly so a late INCR never resurrects a
	// window without a TTL.
	windowTTL = 65 * time.Second
)

// RedisLimiter is a fixed one-minute window counter shared by all instances.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	now    func() time.Time
}

var _ ports.RateLimiter = (*RedisLimiter)(nil)

// NewRedisLimiter allows requestsPerMinute calls per key and minute.
func NewRedisLimiter(client *redis.Client, requestsPerMinute int) *RedisLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 100
	}
	return &RedisLimiter{client: client, limit: int64(requestsPerMinute), now: time.Now}
}

// NewClient parses a redis:// URL and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Allow counts the call in the current minute and reports whether it is
// within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := fmt.Sprintf("%s%s:%d", keyPrefix, key, l.now().Unix()/60)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, windowTTL)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return incr.Val() <= l.limit, nil
}
