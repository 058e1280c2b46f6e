package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript prunes, counts and conditionally records in one round trip so
// rejected events never enter the window.
var allowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisLimiter keeps each key's window in a sorted set, so limits survive
// restarts and are shared by every process using the same Redis.
type RedisLimiter struct {
	client *redis.Client
	config Config
	now    Clock
	seq    atomic.Uint64
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, config Config) *RedisLimiter {
	return NewRedisLimiterWithClock(client, config, time.Now)
}

// NewRedisLimiterWithClock creates a Redis-backed limiter driven by clock.
func NewRedisLimiterWithClock(client *redis.Client, config Config, clock Clock) *RedisLimiter {
	return &RedisLimiter{client: client, config: config, now: clock}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	windowStart := now.Add(-l.config.Window).UnixMicro()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), l.seq.Add(1))
	ttl := (l.config.Window + time.Minute).Milliseconds()

	res, err := allowScript.Run(ctx, l.client, []string{l.getKey(key)},
		windowStart, now.UnixMicro(), l.config.MaxRequests, member, ttl).Int()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit for %s: %w", key, err)
	}
	return res == 1, nil
}

// Remaining returns how many more events key may produce right now.
func (l *RedisLimiter) Remaining(ctx context.Context, key string) (int64, error) {
	redisKey := l.getKey(key)
	windowStart := l.now().Add(-l.config.Window).UnixMicro()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%d", windowStart))
	zcard := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to get remaining: %w", err)
	}

	remaining := int64(l.config.MaxRequests) - zcard.Val()
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.getKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for %s: %w", key, err)
	}
	return nil
}

func (l *RedisLimiter) getKey(identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s", identifier, l.config.Window.String())
}
