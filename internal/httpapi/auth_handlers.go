package httpapi

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ammonsd/activitytracking/internal/audit"
	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	Username     string `json:"username,omitempty"`
	Role         string `json:"role,omitempty"`

	ForcePasswordUpdate bool `json:"forcePasswordUpdate,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pair, user, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		outcome, event := "failure", audit.EventLoginFailed
		if errors.Is(err, auth.ErrAccountLocked) {
			outcome, event = "locked", audit.EventAccountLocked
		}
		if auth.IsAuthenticationFailure(err) {
			obs.ObserveLogin(outcome)
			_ = audit.LogEvent(r.Context(), event,
				zap.String("username", req.Username),
				zap.String("client", a.limiter.Identity(r)),
				zap.String("reason", err.Error()),
			)
		}
		a.handleAuthError(w, r, err)
		return
	}

	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), audit.EventLoginSucceeded,
		zap.String("username", user.Username),
		zap.String("client", a.limiter.Identity(r)),
	)
	resp := tokenResponse{
		AccessToken:         pair.AccessToken,
		RefreshToken:        pair.RefreshToken,
		TokenType:           "Bearer",
		ExpiresIn:           secondsUntil(pair.AccessExpiresAt),
		Username:            user.Username,
		ForcePasswordUpdate: user.ForcePasswordUpdate,
	}
	if user.Role != nil {
		resp.Role = user.Role.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}
	access, expiresAt, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   secondsUntil(expiresAt),
	})
}

// handleLogout revokes the presented access token and, when supplied, the
// refresh token. A token that is already on the blacklist yields 400.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeUnauthorized(w, r, err.Error())
		return
	}
	claims, err := a.auth.Tokens().Parse(token)
	if err != nil {
		writeUnauthorized(w, r, "invalid or expired token")
		return
	}
	// the body is optional; an empty one, chunked or not, revokes only the access token
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ok, err := a.auth.Logout(r.Context(), token, req.RefreshToken)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusBadRequest, "token already revoked")
		return
	}
	obs.ObserveRevocation(string(auth.ReasonLogout))
	_ = audit.LogEvent(r.Context(), audit.EventLogout, zap.String("username", claims.Subject))
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

// handleChangePassword rotates the caller's password and revokes the token
// that presented the request.
func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := a.passwords.ChangePassword(r.Context(), principal.Username, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, r, http.StatusBadRequest, "current password is incorrect")
			return
		}
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPasswordChanged, zap.String("username", principal.Username))

	if token, ok := auth.TokenFromContext(r.Context()); ok {
		revoked, err := a.auth.Revocations().Revoke(r.Context(), token, auth.ReasonPasswordChange)
		if err != nil {
			a.logger.Warn("revoke after password change", zap.Error(err), zap.String("username", principal.Username))
		} else if revoked {
			obs.ObserveRevocation(string(auth.ReasonPasswordChange))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "password changed"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	grants, err := a.enforcer.GrantsFor(r.Context(), principal.Username)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":    principal.Username,
		"role":        grants.Role,
		"permissions": grants.Permissions,
		"expiresAt":   principal.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func secondsUntil(t time.Time) int64 {
	d := time.Until(t)
	if d < 0 {
		return 0
	}
	return int64(d.Round(time.Second) / time.Second)
}
