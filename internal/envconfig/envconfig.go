// Package envconfig loads the goroam server configuration from the
// environment and an optional .env file using Viper.
package envconfig

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	goRoam "github.com/MrEthical07/goRoam"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Env holds everything the goroam binary reads from the environment.
type Env struct {
	// ListenAddr is the HTTP listen address (e.g. :8080).
	ListenAddr string `mapstructure:"GOROAM_LISTEN_ADDR"`
	// RedisAddr is the Redis address; empty starts an embedded miniredis.
	RedisAddr     string `mapstructure:"GOROAM_REDIS_ADDR"`
	RedisPassword string `mapstructure:"GOROAM_REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"GOROAM_REDIS_DB"`
	// DatabaseURL is the Postgres DSN; empty uses the in-memory identity store.
	DatabaseURL string `mapstructure:"GOROAM_DATABASE_URL"`
	// PolicyFile is a Rego module replacing the default roaming policy.
	PolicyFile string `mapstructure:"GOROAM_POLICY_FILE"`
	// Sites seeds the site directory as "id=url,id=url".
	Sites string `mapstructure:"GOROAM_SITES"`
	// AdminLogin and AdminPassword seed a network admin on the root site.
	AdminLogin    string `mapstructure:"GOROAM_ADMIN_LOGIN"`
	AdminPassword string `mapstructure:"GOROAM_ADMIN_PASSWORD"`

	LogLevel  string `mapstructure:"GOROAM_LOG_LEVEL"`
	LogFormat string `mapstructure:"GOROAM_LOG_FORMAT"`

	MetricsPath       string        `mapstructure:"GOROAM_METRICS_PATH"`
	SessionLifetime   time.Duration `mapstructure:"GOROAM_SESSION_LIFETIME"`
	TrustForwardedFor bool          `mapstructure:"GOROAM_TRUST_FORWARDED_FOR"`
	NonceTTL          time.Duration `mapstructure:"GOROAM_NONCE_TTL"`

	NetworkDomain string `mapstructure:"GOROAM_NETWORK_DOMAIN"`
	RootSiteID    string `mapstructure:"GOROAM_ROOT_SITE_ID"`
	LoginPath     string `mapstructure:"GOROAM_LOGIN_PATH"`
	HomePath      string `mapstructure:"GOROAM_HOME_PATH"`

	RoamingEnabled    bool   `mapstructure:"GOROAM_ROAMING_ENABLED"`
	RoamingCookieName string `mapstructure:"GOROAM_ROAMING_COOKIE_NAME"`

	ErrorRedirectURL string `mapstructure:"GOROAM_REMOTE_LOGIN_ERROR_URL"`
	SingleUse        bool   `mapstructure:"GOROAM_REMOTE_LOGIN_SINGLE_USE"`
	EnforceIPBinding bool   `mapstructure:"GOROAM_REMOTE_LOGIN_IP_BINDING"`

	SecretKey              string        `mapstructure:"GOROAM_SECRET_KEY"`
	CacheExpiry            time.Duration `mapstructure:"GOROAM_CACHE_EXPIRY"`
	RoamingCookieExpiry    time.Duration `mapstructure:"GOROAM_ROAMING_COOKIE_EXPIRY"`
	RemoteLoginTokenExpiry time.Duration `mapstructure:"GOROAM_REMOTE_LOGIN_TOKEN_EXPIRY"`
	RateLimitMax           int           `mapstructure:"GOROAM_RATE_LIMIT_MAX"`
	RateLimitWait          time.Duration `mapstructure:"GOROAM_RATE_LIMIT_WAIT"`

	RedisPrefix   string `mapstructure:"GOROAM_REDIS_PREFIX"`
	CacheSettings bool   `mapstructure:"GOROAM_CACHE_SETTINGS"`
	MarkOnUnlink  bool   `mapstructure:"GOROAM_MARK_ON_UNLINK"`

	AuditEnabled   bool `mapstructure:"GOROAM_AUDIT_ENABLED"`
	MetricsEnabled bool `mapstructure:"GOROAM_METRICS_ENABLED"`
	ProductionMode bool `mapstructure:"GOROAM_PRODUCTION"`
}

// Load reads envFile (if present, ignored when missing), then builds Env from
// the environment via Viper. Env vars override the file.
func Load(envFile string) (*Env, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("envconfig: read %s: %w", envFile, err)
			}
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	var env Env
	if err := v.Unmarshal(&env); err != nil {
		return nil, fmt.Errorf("envconfig: %w", err)
	}

	if env.ListenAddr == "" {
		return nil, errors.New("envconfig: GOROAM_LISTEN_ADDR must be set")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(env.LogLevel)); err != nil {
		return nil, fmt.Errorf("envconfig: GOROAM_LOG_LEVEL: %w", err)
	}
	switch env.LogFormat {
	case "console", "json":
	default:
		return nil, fmt.Errorf("envconfig: GOROAM_LOG_FORMAT must be console or json, got %q", env.LogFormat)
	}
	if env.SessionLifetime <= 0 {
		return nil, errors.New("envconfig: GOROAM_SESSION_LIFETIME must be > 0")
	}

	return &env, nil
}

func setDefaults(v *viper.Viper) {
	defaults := goRoam.DefaultConfig()

	v.SetDefault("GOROAM_LISTEN_ADDR", ":8080")
	v.SetDefault("GOROAM_REDIS_ADDR", "")
	v.SetDefault("GOROAM_REDIS_PASSWORD", "")
	v.SetDefault("GOROAM_REDIS_DB", 0)
	v.SetDefault("GOROAM_DATABASE_URL", "")
	v.SetDefault("GOROAM_POLICY_FILE", "")
	v.SetDefault("GOROAM_SITES", "")
	v.SetDefault("GOROAM_ADMIN_LOGIN", "")
	v.SetDefault("GOROAM_ADMIN_PASSWORD", "")
	v.SetDefault("GOROAM_LOG_LEVEL", "info")
	v.SetDefault("GOROAM_LOG_FORMAT", "console")
	v.SetDefault("GOROAM_METRICS_PATH", "/metrics")
	v.SetDefault("GOROAM_SESSION_LIFETIME", "12h")
	v.SetDefault("GOROAM_TRUST_FORWARDED_FOR", false)
	v.SetDefault("GOROAM_NONCE_TTL", "15m")

	v.SetDefault("GOROAM_NETWORK_DOMAIN", "")
	v.SetDefault("GOROAM_ROOT_SITE_ID", defaults.Platform.RootSiteID)
	v.SetDefault("GOROAM_LOGIN_PATH", defaults.Platform.LoginPath)
	v.SetDefault("GOROAM_HOME_PATH", defaults.Platform.HomePath)

	v.SetDefault("GOROAM_ROAMING_ENABLED", defaults.Roaming.Enabled)
	v.SetDefault("GOROAM_ROAMING_COOKIE_NAME", defaults.Roaming.CookieName)

	v.SetDefault("GOROAM_REMOTE_LOGIN_ERROR_URL", defaults.RemoteLogin.ErrorRedirectURL)
	v.SetDefault("GOROAM_REMOTE_LOGIN_SINGLE_USE", defaults.RemoteLogin.SingleUse)
	v.SetDefault("GOROAM_REMOTE_LOGIN_IP_BINDING", defaults.RemoteLogin.EnforceIPBinding)

	v.SetDefault("GOROAM_SECRET_KEY", defaults.Settings.SecretKey)
	v.SetDefault("GOROAM_CACHE_EXPIRY", defaults.Settings.CacheExpiry.String())
	v.SetDefault("GOROAM_ROAMING_COOKIE_EXPIRY", defaults.Settings.RoamingCookieExpiry.String())
	v.SetDefault("GOROAM_REMOTE_LOGIN_TOKEN_EXPIRY", defaults.Settings.RemoteLoginTokenExpiry.String())
	v.SetDefault("GOROAM_RATE_LIMIT_MAX", defaults.Settings.RateLimitMax)
	v.SetDefault("GOROAM_RATE_LIMIT_WAIT", defaults.Settings.RateLimitWait.String())

	v.SetDefault("GOROAM_REDIS_PREFIX", defaults.Cache.RedisPrefix)
	v.SetDefault("GOROAM_CACHE_SETTINGS", defaults.Cache.CacheSettings)
	v.SetDefault("GOROAM_MARK_ON_UNLINK", defaults.Cleanup.MarkOnUnlink)

	v.SetDefault("GOROAM_AUDIT_ENABLED", defaults.Audit.Enabled)
	v.SetDefault("GOROAM_METRICS_ENABLED", true)
	v.SetDefault("GOROAM_PRODUCTION", defaults.Security.ProductionMode)
}

// EngineConfig maps the environment onto a goRoam.Config. The result is not
// validated; callers run Config.Validate or Builder.Build.
func (e *Env) EngineConfig() goRoam.Config {
	cfg := goRoam.DefaultConfig()

	cfg.Platform.NetworkDomain = e.NetworkDomain
	cfg.Platform.RootSiteID = e.RootSiteID
	cfg.Platform.LoginPath = e.LoginPath
	cfg.Platform.HomePath = e.HomePath

	cfg.Roaming.Enabled = e.RoamingEnabled
	cfg.Roaming.CookieName = e.RoamingCookieName

	cfg.RemoteLogin.ErrorRedirectURL = e.ErrorRedirectURL
	cfg.RemoteLogin.SingleUse = e.SingleUse
	cfg.RemoteLogin.EnforceIPBinding = e.EnforceIPBinding

	cfg.Settings = goRoam.Settings{
		CacheExpiry:            e.CacheExpiry,
		RoamingCookieExpiry:    e.RoamingCookieExpiry,
		RemoteLoginTokenExpiry: e.RemoteLoginTokenExpiry,
		RateLimitMax:           e.RateLimitMax,
		RateLimitWait:          e.RateLimitWait,
		SecretKey:              e.SecretKey,
	}

	cfg.Cache.RedisPrefix = e.RedisPrefix
	cfg.Cache.CacheSettings = e.CacheSettings
	cfg.Cleanup.MarkOnUnlink = e.MarkOnUnlink
	cfg.Audit.Enabled = e.AuditEnabled
	cfg.Metrics.Enabled = e.MetricsEnabled
	cfg.Security.ProductionMode = e.ProductionMode

	return cfg
}

// SiteList parses Sites. Entries are "id=url" separated by commas.
func (e *Env) SiteList() ([]goRoam.Site, error) {
	if strings.TrimSpace(e.Sites) == "" {
		return nil, nil
	}
	var out []goRoam.Site
	for _, part := range strings.Split(e.Sites, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, rawURL, ok := strings.Cut(part, "=")
		id, rawURL = strings.TrimSpace(id), strings.TrimSpace(rawURL)
		if !ok || id == "" || rawURL == "" {
			return nil, fmt.Errorf("envconfig: GOROAM_SITES entry %q must be id=url", part)
		}
		out = append(out, goRoam.Site{ID: id, URL: rawURL})
	}
	return out, nil
}

// Logger builds the process logger from LogLevel and LogFormat.
func (e *Env) Logger(out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(e.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	if e.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
