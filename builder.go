package goRoam

import (
	"errors"
	"time"

	"github.com/MrEthical07/goRoam/cookie"
	"github.com/MrEthical07/goRoam/internal/rate"
	"github.com/MrEthical07/goRoam/internal/stores"
	"github.com/MrEthical07/goRoam/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. Configure it with the WithX methods, then
// call Build once.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identities  IdentityStore
	sites       SiteDirectory
	sessions    SessionHost
	settings    SettingsProvider
	eligibility EligibilityFunc
	elevation   EligibilityFunc
	cleanup     CleanupQueue
	auditSink   AuditSink
	logger      zerolog.Logger

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with [DefaultConfig] and a no-op logger.
// New does not mutate shared global state and can be used concurrently.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; Build validates it.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis sets the keyed cache used for attempt counters, cached settings, and the consumed-token registry.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore describes the withidentitystore operation and its observable behavior.
//
// WithIdentityStore sets the host's identity table. Required.
// WithIdentityStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	b.identities = store
	return b
}

// WithSiteDirectory describes the withsitedirectory operation and its observable behavior.
//
// WithSiteDirectory sets the tenant resolver. Required.
// WithSiteDirectory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSiteDirectory(dir SiteDirectory) *Builder {
	b.sites = dir
	return b
}

// WithSessionHost describes the withsessionhost operation and its observable behavior.
//
// WithSessionHost sets the host's local session mechanism. Required.
// WithSessionHost does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSessionHost(host SessionHost) *Builder {
	b.sessions = host
	return b
}

// WithSettingsProvider describes the withsettingsprovider operation and its observable behavior.
//
// WithSettingsProvider sets the runtime source of tenant-wide tunables. When
// Cache.CacheSettings is on, Build wraps it in a Redis cache.
// Without a provider the engine serves Config.Settings.
func (b *Builder) WithSettingsProvider(p SettingsProvider) *Builder {
	b.settings = p
	return b
}

// WithEligibility describes the witheligibility operation and its observable behavior.
//
// WithEligibility overrides the roaming-eligibility predicate. The default is [DefaultEligibility].
func (b *Builder) WithEligibility(fn EligibilityFunc) *Builder {
	b.eligibility = fn
	return b
}

// WithNetworkElevation describes the withnetworkelevation operation and its observable behavior.
//
// WithNetworkElevation overrides the predicate that lets an identity unlink
// accounts it does not own. The default is [DefaultEligibility].
func (b *Builder) WithNetworkElevation(fn EligibilityFunc) *Builder {
	b.elevation = fn
	return b
}

// WithCleanupQueue describes the withcleanupqueue operation and its observable behavior.
//
// WithCleanupQueue sets where unlinked identities are marked for deferred
// removal. With Cleanup.MarkOnUnlink and no queue, Build uses a Redis set.
func (b *Builder) WithCleanupQueue(q CleanupQueue) *Builder {
	b.cleanup = q
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink sets the sink used when Audit.Enabled is on.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger sets the logger for best-effort failures that do not surface as errors.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled toggles in-process counters.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms toggles the session-validation latency histogram.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when configuration validation fails or a required collaborator is missing.
// Build is single-use; a second call returns an error.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.identities == nil {
		return nil, errors.New("identity store required")
	}
	if b.sites == nil {
		return nil, errors.New("site directory required")
	}
	if b.sessions == nil {
		return nil, errors.New("session host required")
	}

	if !cfg.Settings.SecretRotated() {
		b.logger.Warn().Msg("roaming_secret_key is the shipped default; rotate it before production use")
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		identities:  b.identities,
		sites:       b.sites,
		sessions:    b.sessions,
		eligibility: b.eligibility,
		elevation:   b.elevation,
		logger:      b.logger,
		boundDomain: cookie.BoundDomain(cfg.Platform.NetworkDomain),
		now:         time.Now,
	}
	if engine.eligibility == nil {
		engine.eligibility = DefaultEligibility
	}
	if engine.elevation == nil {
		engine.elevation = DefaultEligibility
	}

	// -------- SETTINGS --------
	switch {
	case b.settings == nil:
		engine.settings = StaticSettings(cfg.Settings)
	case cfg.Cache.CacheSettings:
		engine.settings = NewCachedSettings(b.settings, b.redis, cfg.Cache.RedisPrefix, cfg.Platform.RootSiteID)
	default:
		engine.settings = b.settings
	}

	// -------- CODECS --------
	clock := func() time.Time { return engine.now() }
	engine.tokens = token.NewService(engine.secretKey, token.WithClock(clock))
	engine.cookies = cookie.NewCodec(engine.secretKey, clock)

	// -------- REDIS STORES --------
	engine.limiter = rate.New(b.redis, cfg.Cache.RedisPrefix)
	if cfg.RemoteLogin.SingleUse {
		engine.replay = stores.NewReplayRegistry(b.redis, cfg.Cache.RedisPrefix)
	}
	engine.cleanup = b.cleanup
	if engine.cleanup == nil && cfg.Cleanup.MarkOnUnlink {
		engine.cleanup = stores.NewCleanupQueue(b.redis, cfg.Cache.RedisPrefix)
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, b.logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
