package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrSettingsNotCached        = errors.New("settings not cached")
	ErrSettingsRedisUnavailable = errors.New("settings redis unavailable")
)

// SettingsCache holds one serialized settings blob per tenant group.
type SettingsCache struct {
	redis redis.UniversalClient
	key   string
}

func NewSettingsCache(redisClient redis.UniversalClient, prefix, tenantKey string) *SettingsCache {
	if prefix == "" {
		prefix = "gr"
	}
	if tenantKey == "" {
		tenantKey = "default"
	}
	return &SettingsCache{
		redis: redisClient,
		key:   prefix + ":settings:" + tenantKey,
	}
}

func (s *SettingsCache) Get(ctx context.Context) ([]byte, error) {
	if s == nil || s.redis == nil {
		return nil, ErrSettingsRedisUnavailable
	}
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSettingsNotCached
		}
		return nil, fmt.Errorf("%w: %v", ErrSettingsRedisUnavailable, err)
	}
	return data, nil
}

func (s *SettingsCache) Put(ctx context.Context, data []byte, ttl time.Duration) error {
	if s == nil || s.redis == nil {
		return ErrSettingsRedisUnavailable
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSettingsRedisUnavailable, err)
	}
	return nil
}

func (s *SettingsCache) Delete(ctx context.Context) error {
	if s == nil || s.redis == nil {
		return ErrSettingsRedisUnavailable
	}
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSettingsRedisUnavailable, err)
	}
	return nil
}
