package goRoam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/goRoam/internal/stores"
	"github.com/redis/go-redis/v9"
)

// DefaultSecretKey is the shipped placeholder for roaming_secret_key.
// Deployments must rotate it; [Config.Validate] refuses it in ProductionMode.
const DefaultSecretKey = "goroam-default-secret-change-me"

// Tunable ranges accepted by [Settings.Validate].
const (
	MinCacheExpiry            = time.Hour
	MaxCacheExpiry            = 24 * time.Hour
	MinRoamingCookieExpiry    = 30 * time.Minute
	MaxRoamingCookieExpiry    = 12 * time.Hour
	MinRemoteLoginTokenExpiry = 30 * time.Second
	MaxRemoteLoginTokenExpiry = 300 * time.Second
	MinRateLimitMax           = 3
	MaxRateLimitMax           = 10
	MinRateLimitWait          = time.Minute
	MaxRateLimitWait          = time.Hour
)

// Settings are the tenant-wide tunables. They may change at any time, so the
// engine reads them through a [SettingsProvider] on every operation.
type Settings struct {
	CacheExpiry            time.Duration `json:"cache_expiry"`
	RoamingCookieExpiry    time.Duration `json:"roaming_cookie_expiry"`
	RemoteLoginTokenExpiry time.Duration `json:"remote_login_token_expiry"`
	RateLimitMax           int           `json:"rate_limit_max"`
	RateLimitWait          time.Duration `json:"rate_limit_wait"`
	SecretKey              string        `json:"roaming_secret_key"`
}

// DefaultSettings returns the defaults for every tunable.
func DefaultSettings() Settings {
	return Settings{
		CacheExpiry:            time.Hour,
		RoamingCookieExpiry:    time.Hour,
		RemoteLoginTokenExpiry: 60 * time.Second,
		RateLimitMax:           5,
		RateLimitWait:          5 * time.Minute,
		SecretKey:              DefaultSecretKey,
	}
}

// Validate checks every tunable against its accepted range.
func (s Settings) Validate() error {
	if s.CacheExpiry < MinCacheExpiry || s.CacheExpiry > MaxCacheExpiry {
		return fmt.Errorf("cache_expiry must be within [%s, %s]", MinCacheExpiry, MaxCacheExpiry)
	}
	if s.RoamingCookieExpiry < MinRoamingCookieExpiry || s.RoamingCookieExpiry > MaxRoamingCookieExpiry {
		return fmt.Errorf("roaming_cookie_expiry must be within [%s, %s]", MinRoamingCookieExpiry, MaxRoamingCookieExpiry)
	}
	if s.RemoteLoginTokenExpiry < MinRemoteLoginTokenExpiry || s.RemoteLoginTokenExpiry > MaxRemoteLoginTokenExpiry {
		return fmt.Errorf("remote_login_token_expiry must be within [%s, %s]", MinRemoteLoginTokenExpiry, MaxRemoteLoginTokenExpiry)
	}
	if s.RateLimitMax < MinRateLimitMax || s.RateLimitMax > MaxRateLimitMax {
		return fmt.Errorf("rate_limit_max must be within [%d, %d]", MinRateLimitMax, MaxRateLimitMax)
	}
	if s.RateLimitWait < MinRateLimitWait || s.RateLimitWait > MaxRateLimitWait {
		return fmt.Errorf("rate_limit_wait must be within [%s, %s]", MinRateLimitWait, MaxRateLimitWait)
	}
	if s.SecretKey == "" {
		return errors.New("roaming_secret_key is required")
	}
	return nil
}

// SecretRotated reports whether the signing secret differs from
// [DefaultSecretKey].
func (s Settings) SecretRotated() bool {
	return s.SecretKey != "" && s.SecretKey != DefaultSecretKey
}

// SettingsProvider supplies the current tenant-wide tunables.
type SettingsProvider interface {
	Settings(ctx context.Context) (Settings, error)
}

// SettingsFunc adapts a function to [SettingsProvider].
type SettingsFunc func(ctx context.Context) (Settings, error)

// Settings implements [SettingsProvider].
func (f SettingsFunc) Settings(ctx context.Context) (Settings, error) {
	return f(ctx)
}

// StaticSettings is a fixed [SettingsProvider].
type StaticSettings Settings

// Settings implements [SettingsProvider].
func (s StaticSettings) Settings(context.Context) (Settings, error) {
	return Settings(s), nil
}

// CachedSettings wraps a source provider with a Redis cache whose entries
// live for the source's own cache_expiry. A cache failure falls through to
// the source.
//
// The signing secret never reaches Redis. The cached entry carries every
// other tunable (durations as integer nanoseconds) and the secret is kept
// in process memory from the last source read, so a process that has not
// read the source yet always falls through to it.
type CachedSettings struct {
	source SettingsProvider
	cache  *stores.SettingsCache

	mu     sync.RWMutex
	secret string
}

// NewCachedSettings returns a Redis-cached view of source. tenantKey scopes
// the cache entry, so tenant groups sharing one Redis stay apart.
func NewCachedSettings(source SettingsProvider, redisClient redis.UniversalClient, prefix, tenantKey string) *CachedSettings {
	return &CachedSettings{
		source: source,
		cache:  stores.NewSettingsCache(redisClient, prefix, tenantKey),
	}
}

// Settings implements [SettingsProvider].
func (c *CachedSettings) Settings(ctx context.Context) (Settings, error) {
	c.mu.RLock()
	secret := c.secret
	c.mu.RUnlock()

	if secret != "" {
		if data, err := c.cache.Get(ctx); err == nil {
			var s Settings
			if json.Unmarshal(data, &s) == nil {
				s.SecretKey = secret
				return s, nil
			}
		}
	}

	s, err := c.source.Settings(ctx)
	if err != nil {
		return Settings{}, err
	}

	c.mu.Lock()
	c.secret = s.SecretKey
	c.mu.Unlock()

	shared := s
	shared.SecretKey = ""
	if data, err := json.Marshal(shared); err == nil {
		_ = c.cache.Put(ctx, data, s.CacheExpiry)
	}
	return s, nil
}

// Invalidate drops the cached entry so the next read hits the source.
func (c *CachedSettings) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx)
}

// Clamp pulls every tunable into its accepted range. The engine applies it to
// provider values so a bad runtime setting degrades instead of failing every
// request.
func (s Settings) Clamp() Settings {
	s.CacheExpiry = clampDuration(s.CacheExpiry, MinCacheExpiry, MaxCacheExpiry)
	s.RoamingCookieExpiry = clampDuration(s.RoamingCookieExpiry, MinRoamingCookieExpiry, MaxRoamingCookieExpiry)
	s.RemoteLoginTokenExpiry = clampDuration(s.RemoteLoginTokenExpiry, MinRemoteLoginTokenExpiry, MaxRemoteLoginTokenExpiry)
	s.RateLimitWait = clampDuration(s.RateLimitWait, MinRateLimitWait, MaxRateLimitWait)
	if s.RateLimitMax < MinRateLimitMax {
		s.RateLimitMax = MinRateLimitMax
	}
	if s.RateLimitMax > MaxRateLimitMax {
		s.RateLimitMax = MaxRateLimitMax
	}
	return s
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
