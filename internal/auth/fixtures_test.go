package auth_test

import (
	"context"
	"testing"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/store/memory"
)

const signingSecret = "fixture-signing-secret-0123456789abcdef"

func newTokens(t *testing.T, opts ...auth.TokenOption) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(signingSecret, opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func holder(username, role string) *auth.User {
	return &auth.User{ID: "u-" + username, Username: username, Enabled: true, Role: &auth.Role{Name: role}}
}

// seedUser stores an enabled account with a low-cost hash. An empty role
// leaves the account roleless.
func seedUser(t *testing.T, store *memory.Store, username, password, role string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password, 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &auth.User{Username: username, PasswordHash: hash, Enabled: true}
	if role != "" {
		u.Role = &auth.Role{Name: role}
	}
	if err := store.CreateUser(context.Background(), u, 0); err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func historyLen(t *testing.T, store *memory.Store, userID string) int {
	t.Helper()
	hashes, err := store.RecentPasswordHashes(context.Background(), userID, 100)
	if err != nil {
		t.Fatalf("RecentPasswordHashes: %v", err)
	}
	return len(hashes)
}
