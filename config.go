package goRoam

import (
	"errors"
	"strings"
)

// Config holds the static engine configuration. Tenant-wide tunables that may
// change at runtime live in [Settings] and are read through a
// [SettingsProvider]; Config.Settings only seeds the default provider.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Platform    PlatformConfig
	Roaming     RoamingConfig
	RemoteLogin RemoteLoginConfig
	Settings    Settings
	Cache       CacheConfig
	Cleanup     CleanupConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
	Security    SecurityConfig
}

/*
====================================
PLATFORM CONFIG
====================================
*/

// PlatformConfig describes the tenant group the engine serves.
type PlatformConfig struct {
	// RootSiteID is the designated root tenant hosting primary identities.
	RootSiteID string
	// NetworkDomain is the network-wide domain setting, e.g. "example.com".
	NetworkDomain string
	// LoginPath is appended to a site base URL for remote-login links.
	LoginPath string
	// HomePath is where a successful remote login lands on the target site.
	HomePath string
}

/*
====================================
ROAMING CONFIG
====================================
*/

// RoamingConfig controls the roaming cookie.
type RoamingConfig struct {
	Enabled    bool
	CookieName string
}

/*
====================================
REMOTE LOGIN CONFIG
====================================
*/

// RemoteLoginConfig controls the one-time remote-login endpoint.
type RemoteLoginConfig struct {
	// ErrorRedirectURL receives failed remote logins with ?error=<code>.
	// Empty means the target site's login path.
	ErrorRedirectURL string
	// SingleUse rejects a token whose signature was already consumed within
	// its lifetime.
	SingleUse bool
	// EnforceIPBinding rejects tokens presented from an address other than
	// the issuing one.
	EnforceIPBinding bool
}

// CacheConfig controls the Redis layout for settings, counters and
// registries.
type CacheConfig struct {
	RedisPrefix   string
	CacheSettings bool
}

// CleanupConfig controls the deferred-removal queue.
type CleanupConfig struct {
	MarkOnUnlink bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds deployment hardening switches.
type SecurityConfig struct {
	// ProductionMode turns an unrotated signing secret into a build error.
	ProductionMode bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Platform: PlatformConfig{
			RootSiteID: "1",
			LoginPath:  "/login",
			HomePath:   "/",
		},
		Roaming: RoamingConfig{
			Enabled:    true,
			CookieName: "goroam_roaming",
		},
		RemoteLogin: RemoteLoginConfig{
			SingleUse:        false,
			EnforceIPBinding: true,
		},
		Settings: DefaultSettings(),
		Cache: CacheConfig{
			RedisPrefix:   "gr",
			CacheSettings: true,
		},
		Cleanup: CleanupConfig{
			MarkOnUnlink: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the baseline configuration. NetworkDomain and the
// signing secret must still be set before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate checks structural constraints and the tunable ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Platform.RootSiteID) == "" {
		return errors.New("Platform RootSiteID is required")
	}
	if c.Roaming.Enabled && strings.TrimSpace(c.Platform.NetworkDomain) == "" {
		return errors.New("Platform NetworkDomain is required when roaming is enabled")
	}
	if !strings.HasPrefix(c.Platform.LoginPath, "/") {
		return errors.New("Platform LoginPath must start with /")
	}
	if !strings.HasPrefix(c.Platform.HomePath, "/") {
		return errors.New("Platform HomePath must start with /")
	}
	if c.Roaming.Enabled && strings.TrimSpace(c.Roaming.CookieName) == "" {
		return errors.New("Roaming CookieName is required")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if c.Security.ProductionMode && !c.Settings.SecretRotated() {
		return errors.New("ProductionMode requires roaming_secret_key to be rotated from its default")
	}
	return nil
}
