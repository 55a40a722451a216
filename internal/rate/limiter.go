package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rl:"

// Limiter is a windowed attempt counter backed by Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Limiter] backed by the given Redis client. prefix namespaces
// every counter key; an empty prefix keeps the bare "rl:" layout.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// CheckAndIncrement reads the counter for key and decides whether one more
// attempt fits in the window:
//
//   - missing or lapsed counter: initialize to 1 with a fresh window, allow
//   - count >= max: deny, counter untouched
//   - otherwise: increment, allow
func (l *Limiter) CheckAndIncrement(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	if max <= 0 {
		return false, nil
	}
	k := l.key(key)

	count, err := l.redis.Get(ctx, k).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if err := l.redis.Set(ctx, k, 1, window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return true, nil
	}

	if count >= int64(max) {
		return false, nil
	}

	next, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// The key lapsed between GET and INCR; INCR recreated it without a TTL.
	if next == 1 {
		if err := l.redis.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return true, nil
}

// Enforce is CheckAndIncrement returning [ErrRateLimited] on denial.
func (l *Limiter) Enforce(ctx context.Context, key string, max int, window time.Duration) error {
	ok, err := l.CheckAndIncrement(ctx, key, max, window)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// Attempts returns the current count for key. Missing keys return zero.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(key string) string {
	if l.prefix == "" {
		return keyPrefix + key
	}
	return l.prefix + ":" + keyPrefix + key
}
