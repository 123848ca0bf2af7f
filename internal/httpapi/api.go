package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/obs"
	"github.com/ammonsd/activitytracking/internal/ratelimit"
)

const serviceName = "activitytracking-auth"

// ReadyProbe reports whether dependencies (the database) can serve traffic.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// Deps collects what the HTTP layer needs.
type Deps struct {
	Auth      *auth.Service
	Enforcer  *auth.Enforcer
	Passwords *auth.PasswordService
	Limiter   *ratelimit.Store
	Ready     ReadyProbe
	Logger    *zap.Logger
	Version   string

	// DebugAccessDenied adds the caller's role and permissions to 403 bodies.
	DebugAccessDenied bool
	MaxBodyBytes      int64
	CORSOrigins       []string
}

// API is the HTTP layer.
type API struct {
	router    chi.Router
	auth      *auth.Service
	enforcer  *auth.Enforcer
	passwords *auth.PasswordService
	limiter   *ratelimit.Store
	ready     ReadyProbe
	logger    *zap.Logger
	version   string

	debugAccessDenied bool
	maxBodyBytes      int64
	corsOrigins       []string
}

func New(d Deps) (*API, error) {
	if d.Auth == nil || d.Enforcer == nil || d.Passwords == nil {
		return nil, errors.New("httpapi: auth, enforcer and password services are required")
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.New(ratelimit.DefaultConfig())
	}
	if d.Logger == nil {
		d.Logger = obs.Logger()
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	a := &API{
		auth:              d.Auth,
		enforcer:          d.Enforcer,
		passwords:         d.Passwords,
		limiter:           d.Limiter,
		ready:             d.Ready,
		logger:            d.Logger,
		version:           d.Version,
		debugAccessDenied: d.DebugAccessDenied,
		maxBodyBytes:      d.MaxBodyBytes,
		corsOrigins:       d.CORSOrigins,
	}
	a.router = a.routes()
	return a, nil
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, a.LoggingJSON, a.Recover, SecurityHeaders, a.CORS, a.MaxBodyBytes)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(a.RateLimit).Post("/login", a.handleLogin)
			r.With(a.RateLimit).Post("/refresh", a.handleRefresh)
			// logout validates the token itself so a retried call reports the
			// earlier revocation instead of failing authentication
			r.Post("/logout", a.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(a.withAuth)
				r.Post("/change-password", a.handleChangePassword)
				r.Get("/me", a.handleMe)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Get("/permissions/check", a.handleCheckPermission)
			r.With(a.require(auth.ResourceUserManagement, auth.ActionCreate)).Post("/users", a.handleCreateUser)
			r.With(a.require(auth.ResourceUserManagement, auth.ActionUpdate)).Put("/users/{username}/password", a.handleResetPassword)
			r.With(a.require(auth.ResourceUserManagement, auth.ActionUpdate)).Post("/admin/tokens/revoke", a.handleRevokeToken)
		})
	})
	return r
}

// Handler returns the root handler wrapped with request metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
