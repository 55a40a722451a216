package httpapi

import (
	"net/http"

	goRoam "github.com/MrEthical07/goRoam"
	"github.com/rs/zerolog"
)

// RemoteLoginHandler consumes ?action=remote_login&token=... links and
// answers with a 303 to the engine's redirect target. Other requests go to
// fallback, or receive 404 when fallback is nil.
func RemoteLoginHandler(engine *goRoam.Engine, logger zerolog.Logger, fallback http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") != "remote_login" {
			if fallback == nil {
				http.NotFound(w, r)
				return
			}
			fallback.ServeHTTP(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if engine == nil {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}

		res := engine.RemoteLogin(r.Context(), w, r, r.URL.Query().Get("token"))
		if !res.OK() {
			logger.Info().
				Err(res.Err).
				Str("code", string(res.Code)).
				Str("host", r.Host).
				Msg("remote login rejected")
		}

		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
	})
}
