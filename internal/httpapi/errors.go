package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/obs"
)

const msgWrongTokenType = "Invalid token type: refresh token required"

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeUnauthorized answers 401 with a bearer challenge.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="activitytracking"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// errEmptyBody is returned by decodeJSON when the request carries no JSON value.
var errEmptyBody = errors.New("request body is required")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError maps service errors onto the status codes clients rely on:
// 401 for any authentication failure, 403 for a missing permission, 400 for
// policy and input problems.
func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var policy *auth.PolicyError
	switch {
	case errors.Is(err, auth.ErrWrongTokenType):
		writeUnauthorized(w, r, msgWrongTokenType)
	case errors.Is(err, auth.ErrAccountLocked):
		writeUnauthorized(w, r, "account is locked")
	case errors.Is(err, auth.ErrAccountDisabled):
		writeUnauthorized(w, r, "account is disabled")
	case errors.Is(err, auth.ErrAccountExpired):
		writeUnauthorized(w, r, "account has expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeUnauthorized(w, r, "token has been revoked")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, r, "invalid username or password")
	case auth.IsAuthenticationFailure(err):
		writeUnauthorized(w, r, "invalid or expired token")
	case auth.IsAccessDenied(err):
		a.writeAccessDenied(w, r, err)
	case errors.As(err, &policy):
		writeError(w, r, http.StatusBadRequest, policy.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "user already exists")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	default:
		a.logger.Error("request failed", zap.Error(err), zap.String("path", r.URL.Path))
		obs.CaptureError(r.Context(), err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
