package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestPrincipalFromClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	user := testUser("alice", RoleGuest)
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{ID: "jti-9", ExpiresAt: jwt.NewNumericDate(exp)}}

	p := NewPrincipal(user, claims)
	if p.Username != "alice" || p.UserID != user.ID {
		t.Fatalf("unexpected identity: %+v", p)
	}
	if p.TokenID != "jti-9" || !p.ExpiresAt.Equal(exp) {
		t.Fatalf("token metadata not copied: %+v", p)
	}
	if !p.HasRole(RoleGuest) || p.HasRole(RoleAdmin) {
		t.Fatalf("unexpected roles: %v", p.Roles)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatalf("empty context must not carry a principal")
	}
	ctx = ContextWithPrincipal(ctx, Principal{Username: "alice"})
	ctx = ContextWithToken(ctx, "raw-token")

	p, ok := PrincipalFromContext(ctx)
	if !ok || p.Username != "alice" {
		t.Fatalf("unexpected principal: %+v ok=%v", p, ok)
	}
	tok, ok := TokenFromContext(ctx)
	if !ok || tok != "raw-token" {
		t.Fatalf("unexpected token: %q ok=%v", tok, ok)
	}
	if _, ok := TokenFromContext(ContextWithToken(context.Background(), "")); ok {
		t.Fatalf("empty token must not be stored")
	}
}

func TestPermissionKey(t *testing.T) {
	p := Permission{Resource: "task_activity", Action: " read "}
	if got := p.Key(); got != "TASK_ACTIVITY:READ" {
		t.Fatalf("unexpected key %q", got)
	}
}
