// Package audit records security-relevant events (logins, lockouts,
// revocations, password changes) on the shared structured logger.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

const (
	EventLoginSucceeded  = "auth.login.succeeded"
	EventLoginFailed     = "auth.login.failed"
	EventAccountLocked   = "auth.account.locked"
	EventLogout          = "auth.logout"
	EventTokenRevoked    = "auth.token.revoked"
	EventPasswordChanged = "auth.password.changed"
	EventPasswordReset   = "auth.password.reset"
	EventUserCreated     = "auth.user.created"
	EventAccessDenied    = "auth.access.denied"
	EventRateLimited     = "auth.rate_limited"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and the
// authenticated principal, when present.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	all := make([]zap.Field, 0, len(fields)+4)
	all = append(all, zap.String("type", "audit"), zap.String("event", event))
	if rid := requestIDFromContext(ctx); rid != "" {
		all = append(all, zap.String("request_id", rid))
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		all = append(all, zap.String("actor", p.Username))
	}
	all = append(all, fields...)
	obs.Logger().Info("audit", all...)
	return nil
}
