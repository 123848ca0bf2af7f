package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ammonsd/activitytracking/internal/audit"
	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/obs"
)

// require declares the permission a route needs. It is attached when the
// route is registered, so the handler never runs for a denied caller.
func (a *API) require(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := a.enforcer.Check(r.Context(), resource, action); err != nil {
				a.handleAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) writeAccessDenied(w http.ResponseWriter, r *http.Request, err error) {
	var denied *auth.AccessDeniedError
	if !errors.As(err, &denied) {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	key := auth.PermissionKey(denied.Resource, denied.Action)
	obs.ObserveAccessDenied(key)
	_ = audit.LogEvent(r.Context(), audit.EventAccessDenied, zap.String("permission", key))

	payload := map[string]any{
		"error":      "access denied",
		"permission": key,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	if a.debugAccessDenied {
		if grants, gerr := a.enforcer.GrantsFor(r.Context(), denied.Username); gerr == nil {
			payload["role"] = grants.Role
			payload["permissions"] = grants.Permissions
		}
	}
	writeJSON(w, http.StatusForbidden, payload)
}
