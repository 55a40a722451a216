package httpapi

import (
	"context"
	"net/http"

	goRoam "github.com/MrEthical07/goRoam"
	"github.com/rs/zerolog"
)

type decisionContextKey struct{}

// DecisionFromContext returns the roaming decision [Roaming] made for the
// request.
func DecisionFromContext(ctx context.Context) (goRoam.RoamingDecision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(goRoam.RoamingDecision)
	return d, ok
}

// Roaming reconciles the local session with the roaming cookie on every
// request. Reconciliation failures are logged and never block the request.
func Roaming(engine *goRoam.Engine, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := engine.OnValidateSession(r.Context(), w, r)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("host", r.Host).
					Str("action", decision.Action.String()).
					Msg("roaming reconciliation failed")
			} else if decision.Action != goRoam.ActionNone {
				logger.Debug().
					Str("host", r.Host).
					Str("action", decision.Action.String()).
					Str("identity_id", decision.IdentityID).
					Msg("roaming session reconciled")
			}

			ctx := context.WithValue(r.Context(), decisionContextKey{}, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
