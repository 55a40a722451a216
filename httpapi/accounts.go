package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	goRoam "github.com/MrEthical07/goRoam"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

// NonceVerifier consumes a single-use nonce issued to identityID.
type NonceVerifier interface {
	VerifyNonce(ctx context.Context, identityID, nonce string) error
}

// NonceIssuer is implemented by verifiers that can also mint nonces. When the
// configured verifier implements it, GET /accounts/nonce is served.
type NonceIssuer interface {
	IssueNonce(ctx context.Context, identityID string) (string, error)
}

// Accounts serves the account-linking endpoints for the identity logged in
// on the current tenant.
type Accounts struct {
	engine   *goRoam.Engine
	sessions goRoam.SessionHost
	nonces   NonceVerifier
	logger   zerolog.Logger
}

// NewAccounts wires the account endpoints. sessions identifies the caller.
func NewAccounts(engine *goRoam.Engine, sessions goRoam.SessionHost, nonces NonceVerifier, logger zerolog.Logger) (*Accounts, error) {
	if engine == nil {
		return nil, goRoam.ErrEngineNotReady
	}
	if sessions == nil {
		return nil, errors.New("httpapi: session host is required")
	}
	if nonces == nil {
		return nil, errors.New("httpapi: nonce verifier is required")
	}
	return &Accounts{engine: engine, sessions: sessions, nonces: nonces, logger: logger}, nil
}

// Register mounts the endpoints on mux.
func (a *Accounts) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /accounts", a.handleList)
	mux.HandleFunc("POST /accounts/link", a.handleLink)
	mux.HandleFunc("POST /accounts/unlink", a.handleUnlink)
	mux.HandleFunc("POST /accounts/login-url", a.handleLoginURL)
	if _, ok := a.nonces.(NonceIssuer); ok {
		mux.HandleFunc("GET /accounts/nonce", a.handleNonce)
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type linkRequest struct {
	Nonce      string `json:"nonce"`
	SiteURL    string `json:"site_url"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	MainUserID string `json:"main_user_id"`
}

type linkResponse struct {
	Message string                `json:"message"`
	Account *goRoam.LinkedAccount `json:"account"`
}

type unlinkRequest struct {
	UserID string `json:"user_id"`
}

type loginURLRequest struct {
	UserID string `json:"user_id"`
	SiteID string `json:"site_id"`
}

type loginURLResponse struct {
	LoginURL string `json:"login_url"`
}

type listResponse struct {
	Accounts []goRoam.LinkedAccount `json:"accounts"`
}

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

func (a *Accounts) handleList(w http.ResponseWriter, r *http.Request) {
	acting, ok := a.caller(w, r)
	if !ok {
		return
	}
	accounts, err := a.engine.LinkedAccounts(r.Context(), acting)
	if err != nil {
		a.writeError(w, "list linked accounts", err)
		return
	}
	if accounts == nil {
		accounts = []goRoam.LinkedAccount{}
	}
	writeJSON(w, http.StatusOK, listResponse{Accounts: accounts})
}

func (a *Accounts) handleNonce(w http.ResponseWriter, r *http.Request) {
	acting, ok := a.caller(w, r)
	if !ok {
		return
	}
	nonce, err := a.nonces.(NonceIssuer).IssueNonce(r.Context(), acting)
	if err != nil {
		a.logger.Error().Err(err).Msg("nonce issue failed")
		writeJSON(w, http.StatusServiceUnavailable, messageResponse{Message: "service unavailable"})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, nonceResponse{Nonce: nonce})
}

func (a *Accounts) handleLink(w http.ResponseWriter, r *http.Request) {
	acting, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MainUserID != "" && req.MainUserID != acting {
		writeJSON(w, http.StatusForbidden, messageResponse{Message: "not allowed"})
		return
	}
	if strings.TrimSpace(req.SiteURL) == "" || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "site_url, username and password are required"})
		return
	}
	if err := a.nonces.VerifyNonce(r.Context(), acting, req.Nonce); err != nil {
		a.logger.Info().Err(err).Str("identity_id", acting).Msg("link nonce rejected")
		writeJSON(w, http.StatusForbidden, messageResponse{Message: "invalid nonce"})
		return
	}

	linked, err := a.engine.LinkAccount(r.Context(), acting, req.SiteURL, req.Username, req.Password)
	if err != nil {
		a.writeError(w, "link account", err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{Message: "account linked", Account: linked})
}

func (a *Accounts) handleUnlink(w http.ResponseWriter, r *http.Request) {
	acting, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req unlinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "user_id is required"})
		return
	}

	if err := a.engine.UnlinkAccount(r.Context(), req.UserID, acting); err != nil {
		a.writeError(w, "unlink account", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "account unlinked"})
}

func (a *Accounts) handleLoginURL(w http.ResponseWriter, r *http.Request) {
	acting, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req loginURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.SiteID == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "user_id and site_id are required"})
		return
	}

	// Only identities linked to the caller can be entered this way.
	accounts, err := a.engine.LinkedAccounts(r.Context(), acting)
	if err != nil {
		a.writeError(w, "list linked accounts", err)
		return
	}
	owned := false
	for _, account := range accounts {
		if account.IdentityID == req.UserID {
			owned = true
			break
		}
	}
	if !owned {
		writeJSON(w, http.StatusForbidden, messageResponse{Message: "not allowed"})
		return
	}

	loginURL, err := a.engine.GenerateLoginURL(r.Context(), req.UserID, req.SiteID)
	if err != nil {
		a.writeError(w, "generate login url", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, loginURLResponse{LoginURL: loginURL})
}

// caller returns the identity logged in on this tenant, writing 401 when
// there is none.
func (a *Accounts) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok, err := a.sessions.CurrentIdentity(r.Context(), r)
	if err != nil {
		a.logger.Error().Err(err).Msg("session lookup failed")
		writeJSON(w, http.StatusServiceUnavailable, messageResponse{Message: "service unavailable"})
		return "", false
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "authentication required"})
		return "", false
	}
	return id, true
}

func (a *Accounts) writeError(w http.ResponseWriter, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("op", op).Msg("account request failed")
	}
	writeJSON(w, status, messageResponse{Message: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, goRoam.ErrInvalidSite):
		return http.StatusBadRequest, "invalid site"
	case errors.Is(err, goRoam.ErrAuthFailed):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, goRoam.ErrAlreadyLinked):
		return http.StatusConflict, "account already linked to another user"
	case errors.Is(err, goRoam.ErrUnauthorized):
		return http.StatusForbidden, "not allowed"
	case errors.Is(err, goRoam.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, goRoam.ErrBackendUnavailable), errors.Is(err, goRoam.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
