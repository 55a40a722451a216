package goRoam

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/goRoam/cookie"
	"github.com/MrEthical07/goRoam/hooks"
	"github.com/MrEthical07/goRoam/internal/rate"
	"github.com/MrEthical07/goRoam/internal/stores"
	"github.com/MrEthical07/goRoam/token"
	"github.com/rs/zerolog"
)

// Engine is the cross-site authentication and session-propagation engine.
// It is safe for concurrent use after [Builder.Build].
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config      Config
	identities  IdentityStore
	sites       SiteDirectory
	sessions    SessionHost
	settings    SettingsProvider
	eligibility EligibilityFunc
	elevation   EligibilityFunc
	cleanup     CleanupQueue
	tokens      *token.Service
	cookies     *cookie.Codec
	limiter     *rate.Limiter
	replay      *stores.ReplayRegistry
	audit       *auditDispatcher
	metrics     *Metrics
	logger      zerolog.Logger
	boundDomain string
	now         func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close drains and stops the audit dispatcher. It is safe to call more than once.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped returns the number of audit events discarded because the buffer was full.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns a copy of every counter; empty when metrics are disabled.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// BoundDomain returns the roaming cookie domain, e.g. ".example.com".
func (e *Engine) BoundDomain() string {
	if e == nil {
		return ""
	}
	return e.boundDomain
}

// Settings describes the settings operation and its observable behavior.
//
// Settings returns the current tenant-wide tunables, clamped into their accepted ranges.
// Settings may return [ErrBackendUnavailable] when the provider fails.
func (e *Engine) Settings(ctx context.Context) (Settings, error) {
	if e == nil || e.settings == nil {
		return Settings{}, ErrEngineNotReady
	}
	s, err := e.settings.Settings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return s.Clamp(), nil
}

// Register describes the register operation and its observable behavior.
//
// Register attaches the engine's login, logout, session-validation and signup-validation callbacks to bus.
// Register is meant to be called once during startup.
func (e *Engine) Register(bus *hooks.Bus) error {
	if e == nil || bus == nil {
		return ErrEngineNotReady
	}
	return errors.Join(
		bus.OnLogin(e.OnLogin),
		bus.OnLogout(e.OnLogout),
		bus.OnValidateSession(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			_, err := e.OnValidateSession(ctx, w, r)
			return err
		}),
		bus.OnSignupValidate(e.OnSignupValidate),
	)
}

func (e *Engine) secretKey(ctx context.Context) ([]byte, error) {
	s, err := e.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(s.SecretKey), nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Flows address metrics by int so they stay free of goRoam types.
func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) loadIdentity(ctx context.Context, id string) (Identity, bool, error) {
	identity, err := e.identities.IdentityByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return Identity{}, false, nil
		}
		return Identity{}, false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return identity, true, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound) || errors.Is(err, ErrSiteNotFound)
}
