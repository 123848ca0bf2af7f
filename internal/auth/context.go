package auth

import "context"

type ctxKey int

const (
	principalKey ctxKey = iota
	bearerKey
)

// ContextWithPrincipal returns a copy of ctx carrying the authenticated caller.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller attached by the authentication
// middleware. A principal without a username counts as absent.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.Username != ""
}

// ContextWithToken keeps the raw bearer credential so that logout and
// password change can revoke the token that made the request.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerKey, token)
}

func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tok, _ := ctx.Value(bearerKey).(string)
	return tok, tok != ""
}
