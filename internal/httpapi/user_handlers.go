package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ammonsd/activitytracking/internal/audit"
	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/obs"
)

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type revokeTokenRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req auth.NewUser
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	user, err := a.passwords.CreateUser(r.Context(), req)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserCreated,
		zap.String("username", user.Username),
		zap.Strings("role", user.RoleNames()),
	)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := a.passwords.ResetPassword(r.Context(), username, req.NewPassword); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPasswordReset, zap.String("username", username))
	writeJSON(w, http.StatusOK, map[string]any{"message": "password reset"})
}

// handleCheckPermission answers whether the caller holds ?key=RESOURCE:ACTION.
func (a *API) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		writeError(w, r, http.StatusBadRequest, "key is required")
		return
	}
	if resource, action, ok := strings.Cut(key, ":"); ok {
		key = auth.PermissionKey(resource, action)
	}
	allowed, err := a.enforcer.UserHasPermission(r.Context(), principal.Username, key)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "allowed": allowed})
}

// handleRevokeToken blacklists an arbitrary token on behalf of an administrator.
func (a *API) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	var req revokeTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return
	}
	reason := auth.ReasonManual
	if req.Reason != "" {
		reason = auth.RevocationReason(strings.ToLower(req.Reason))
	}
	if reason != auth.ReasonManual && reason != auth.ReasonSecurityIncident {
		writeError(w, r, http.StatusBadRequest, "reason must be manual or security_incident")
		return
	}
	ok, err := a.auth.Revocations().Revoke(r.Context(), req.Token, reason)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusBadRequest, "token is invalid or already revoked")
		return
	}
	obs.ObserveRevocation(string(reason))
	_ = audit.LogEvent(r.Context(), audit.EventTokenRevoked, zap.String("reason", string(reason)))
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true, "reason": reason})
}
