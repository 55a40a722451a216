package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goRoam "github.com/MrEthical07/goRoam"
	"github.com/MrEthical07/goRoam/httpapi"
	promexport "github.com/MrEthical07/goRoam/metrics/export/prometheus"
	"github.com/spf13/cobra"
)

const (
	logoutPath      = "/logout"
	shutdownTimeout = 10 * time.Second
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the roaming HTTP server",
		Long: `Serve mounts the roaming middleware in front of a minimal local login,
the remote-login landing handler, the account-linking API and, when enabled,
the Prometheus scrape endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, c.env, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			handler, err := a.handler()
			if err != nil {
				return err
			}
			return serve(ctx, a, handler)
		},
	}
}

func serve(ctx context.Context, a *app, handler http.Handler) error {
	srv := &http.Server{
		Addr:              a.env.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("addr", srv.Addr).
			Str("domain", a.engine.BoundDomain()).
			Msg("goroam listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// handler wires the HTTP surface: RequestContext, then Roaming, then routes.
func (a *app) handler() (http.Handler, error) {
	accounts, err := httpapi.NewAccounts(a.engine, a.sessions, a.nonces, a.logger)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	accounts.Register(mux)
	mux.Handle(a.config.Platform.LoginPath, httpapi.RemoteLoginHandler(a.engine, a.logger, a.localLogin()))
	mux.Handle(logoutPath, a.logout())
	mux.HandleFunc("/healthz", a.healthz)

	if a.env.MetricsEnabled && a.env.MetricsPath != "" {
		metrics, err := promexport.NewCollector(a.engine).Handler()
		if err != nil {
			return nil, fmt.Errorf("metrics handler: %w", err)
		}
		mux.Handle(a.env.MetricsPath, metrics)
	}

	ctxOpts := httpapi.ContextOptions{
		TenantID:          httpapi.TenantFromSites(a.ids),
		TrustForwardedFor: a.env.TrustForwardedFor,
		LogoutPath:        logoutPath,
	}
	return httpapi.RequestContext(ctxOpts)(httpapi.Roaming(a.engine, a.logger)(mux)), nil
}

// localLogin is a plain form login against the tenant the request resolved
// to. GET renders nothing useful; the host application normally owns this.
func (a *app) localLogin() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, "POST login and password to sign in\n")
			return
		}

		ctx := r.Context()
		siteID := goRoam.TenantIDFromContext(ctx)
		if siteID == "" {
			http.Error(w, "unknown site", http.StatusNotFound)
			return
		}

		who, err := a.ids.IdentityByLogin(ctx, siteID, r.PostFormValue("login"))
		if errors.Is(err, goRoam.ErrIdentityNotFound) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		if err != nil {
			a.logger.Error().Err(err).Str("site_id", siteID).Msg("login lookup failed")
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		ok, err := a.ids.VerifyCredential(ctx, who, r.PostFormValue("password"))
		if err != nil || !ok {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		if err := a.sessions.Establish(ctx, w, r, who.ID); err != nil {
			a.logger.Error().Err(err).Msg("session establish failed")
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		// The local session stands even if roaming could not be issued.
		if err := a.bus.Login(ctx, w, r, who.ID); err != nil {
			a.logger.Warn().Err(err).Str("identity_id", who.ID).Msg("login hooks failed")
		}
		http.Redirect(w, r, a.config.Platform.HomePath, http.StatusSeeOther)
	})
}

func (a *app) logout() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := a.bus.Logout(ctx, w, r); err != nil {
			a.logger.Warn().Err(err).Msg("logout hooks failed")
		}
		if err := a.sessions.Terminate(ctx, w, r); err != nil {
			a.logger.Error().Err(err).Msg("session terminate failed")
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Redirect(w, r, a.config.Platform.LoginPath, http.StatusSeeOther)
	})
}

func (a *app) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.redis.Ping(r.Context()).Err(); err != nil {
		http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
		return
	}
	_, _ = io.WriteString(w, "ok\n")
}
