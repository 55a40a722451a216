package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	goRoam "github.com/MrEthical07/goRoam"
	"github.com/MrEthical07/goRoam/hooks"
	"github.com/MrEthical07/goRoam/identity"
	"github.com/MrEthical07/goRoam/internal/envconfig"
	"github.com/MrEthical07/goRoam/internal/stores"
	"github.com/MrEthical07/goRoam/password"
	"github.com/MrEthical07/goRoam/policy"
	"github.com/MrEthical07/goRoam/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// adminIdentityID is the fixed ID of the identity seeded from
// GOROAM_ADMIN_LOGIN.
const adminIdentityID = "admin"

// directory is what both identity backends provide.
type directory interface {
	goRoam.IdentityStore
	goRoam.SiteDirectory
	RemoveIdentity(ctx context.Context, id string) error
}

// app holds every collaborator the commands share.
type app struct {
	env    *envconfig.Env
	config goRoam.Config
	logger zerolog.Logger

	redis    redis.UniversalClient
	ids      directory
	engine   *goRoam.Engine
	bus      *hooks.Bus
	sessions *session.Host
	nonces   *stores.NonceStore
	cleanup  *stores.CleanupQueue

	closers []func()
}

func newApp(ctx context.Context, env *envconfig.Env, logger zerolog.Logger) (*app, error) {
	a := &app{env: env, config: env.EngineConfig(), logger: logger}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	if err := a.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	if err := a.openRedis(ctx); err != nil {
		return fail(err)
	}
	if err := a.openDirectory(ctx); err != nil {
		return fail(err)
	}

	evaluator, err := loadPolicy(ctx, env.PolicyFile)
	if err != nil {
		return fail(err)
	}

	store := session.NewStore(a.redis, a.config.Cache.RedisPrefix, false, 0)
	a.sessions, err = session.NewHost(store, session.HostConfig{
		TenantFromRequest: func(r *http.Request) string { return goRoam.TenantIDFromContext(r.Context()) },
		Secure:            a.config.Security.ProductionMode,
		SameSite:          http.SameSiteLaxMode,
		Lifetime:          env.SessionLifetime,
	})
	if err != nil {
		return fail(err)
	}

	a.cleanup = stores.NewCleanupQueue(a.redis, a.config.Cache.RedisPrefix)
	a.nonces = stores.NewNonceStore(a.redis, a.config.Cache.RedisPrefix, env.NonceTTL)

	a.engine, err = goRoam.New().
		WithConfig(a.config).
		WithRedis(a.redis).
		WithIdentityStore(a.ids).
		WithSiteDirectory(a.ids).
		WithSessionHost(a.sessions).
		WithEligibility(evaluator.Eligible).
		WithNetworkElevation(evaluator.Elevated).
		WithAuditSink(goRoam.NewZerologSink(logger)).
		WithLogger(logger).
		Build()
	if err != nil {
		return fail(fmt.Errorf("build engine: %w", err))
	}
	a.closers = append(a.closers, a.engine.Close)

	a.bus = hooks.NewBus()
	if err := a.engine.Register(a.bus); err != nil {
		return fail(fmt.Errorf("register hooks: %w", err))
	}
	return a, nil
}

// Close releases everything newApp opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) openRedis(ctx context.Context) error {
	if a.env.RedisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		a.logger.Warn().Str("addr", mr.Addr()).Msg("GOROAM_REDIS_ADDR unset, using embedded miniredis")
		a.redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		a.closers = append(a.closers, mr.Close, func() { _ = a.redis.Close() })
		return nil
	}

	a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{a.env.RedisAddr},
		Password: a.env.RedisPassword,
		DB:       a.env.RedisDB,
	})
	a.closers = append(a.closers, func() { _ = a.redis.Close() })
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", a.env.RedisAddr, err)
	}
	return nil
}

func (a *app) openDirectory(ctx context.Context) error {
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}
	sites, err := a.env.SiteList()
	if err != nil {
		return err
	}
	admin := goRoam.Identity{
		ID:           adminIdentityID,
		Login:        a.env.AdminLogin,
		SiteID:       a.config.Platform.RootSiteID,
		NetworkAdmin: true,
	}

	if a.env.DatabaseURL == "" {
		mem := identity.NewMemoryStore(hasher)
		for _, site := range sites {
			if _, err := mem.AddSite(site); err != nil {
				return fmt.Errorf("seed site %s: %w", site.ID, err)
			}
		}
		if admin.Login != "" {
			if _, err := mem.AddIdentity(admin, a.env.AdminPassword); err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
		}
		a.ids = mem
		return nil
	}

	db, err := identity.Open(a.env.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })

	pg := identity.NewPostgresStore(db, hasher)
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, site := range sites {
		_, err := pg.SiteByID(ctx, site.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, goRoam.ErrSiteNotFound) {
			return err
		}
		if _, err := pg.AddSite(ctx, site); err != nil {
			return fmt.Errorf("seed site %s: %w", site.ID, err)
		}
	}
	if admin.Login != "" {
		_, err := pg.IdentityByID(ctx, admin.ID)
		switch {
		case errors.Is(err, goRoam.ErrIdentityNotFound):
			if _, err := pg.AddIdentity(ctx, admin, a.env.AdminPassword); err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
		case err != nil:
			return err
		}
	}
	a.ids = pg
	return nil
}

func loadPolicy(ctx context.Context, path string) (*policy.Evaluator, error) {
	if path == "" {
		return policy.New(ctx, nil)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return policy.New(ctx, map[string]string{filepath.Base(path): string(src)})
}
