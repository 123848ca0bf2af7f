package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/store/memory"
)

func newRBACFixture(t *testing.T) (*memory.Store, *auth.Enforcer) {
	t.Helper()
	store := memory.New()
	store.PutRole(auth.RoleGuest, [2]string{auth.ResourceTaskActivity, auth.ActionRead})
	store.PutRole(auth.RoleAdmin,
		[2]string{auth.ResourceTaskActivity, auth.ActionRead},
		[2]string{auth.ResourceTaskActivity, auth.ActionDelete},
		[2]string{auth.ResourceUserManagement, auth.ActionCreate},
	)
	seedUser(t, store, "guestUser", "Guest#Pass01", auth.RoleGuest)
	seedUser(t, store, "adminUser", "Admin#Pass01", auth.RoleAdmin)
	seedUser(t, store, "roleless", "Nobody#Pass01", "")

	enforcer, err := auth.NewEnforcer(store)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	return store, enforcer
}

func TestUserHasPermission(t *testing.T) {
	_, enforcer := newRBACFixture(t)
	ctx := context.Background()

	cases := []struct {
		user string
		key  string
		want bool
	}{
		{"guestUser", "TASK_ACTIVITY:READ", true},
		{"guestUser", "TASK_ACTIVITY:DELETE", false},
		{"adminUser", "TASK_ACTIVITY:DELETE", true},
		{"adminUser", "EXPENSE:APPROVE", false},
		{"adminUser", "UNKNOWN:KEY", false},
		{"roleless", "TASK_ACTIVITY:READ", false},
		{"ghost", "TASK_ACTIVITY:READ", false},
		{"", "TASK_ACTIVITY:READ", false},
	}
	for _, tc := range cases {
		got, err := enforcer.UserHasPermission(ctx, tc.user, tc.key)
		if err != nil {
			t.Fatalf("UserHasPermission(%q,%q): %v", tc.user, tc.key, err)
		}
		if got != tc.want {
			t.Fatalf("UserHasPermission(%q,%q)=%v, want %v", tc.user, tc.key, got, tc.want)
		}
	}
}

func TestUserHasPermissionFailsClosedForInactiveAccounts(t *testing.T) {
	store, enforcer := newRBACFixture(t)
	ctx := context.Background()

	_ = store.UpdateUser("adminUser", func(u *auth.User) { u.Enabled = false })
	if ok, _ := enforcer.UserHasPermission(ctx, "adminUser", "TASK_ACTIVITY:READ"); ok {
		t.Fatalf("disabled user must be denied")
	}

	_ = store.UpdateUser("adminUser", func(u *auth.User) { u.Enabled = true; u.AccountLocked = true })
	if ok, _ := enforcer.UserHasPermission(ctx, "adminUser", "TASK_ACTIVITY:READ"); ok {
		t.Fatalf("locked user must be denied")
	}

	past := time.Now().Add(-time.Hour)
	_ = store.UpdateUser("adminUser", func(u *auth.User) { u.AccountLocked = false; u.ExpirationDate = &past })
	if ok, _ := enforcer.UserHasPermission(ctx, "adminUser", "TASK_ACTIVITY:READ"); ok {
		t.Fatalf("expired user must be denied")
	}
}

func TestUserHasPermissionRereadsGrants(t *testing.T) {
	store, enforcer := newRBACFixture(t)
	ctx := context.Background()

	if ok, _ := enforcer.UserHasPermission(ctx, "guestUser", "EXPENSE:READ"); ok {
		t.Fatalf("guest must not read expenses yet")
	}
	store.PutRole(auth.RoleGuest,
		[2]string{auth.ResourceTaskActivity, auth.ActionRead},
		[2]string{auth.ResourceExpense, auth.ActionRead},
	)
	if ok, _ := enforcer.UserHasPermission(ctx, "guestUser", "EXPENSE:READ"); !ok {
		t.Fatalf("grant change must be visible on the next check")
	}
}

func TestEnforcerCheck(t *testing.T) {
	_, enforcer := newRBACFixture(t)

	if err := enforcer.Check(context.Background(), auth.ResourceTaskActivity, auth.ActionRead); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	ctx := auth.ContextWithPrincipal(context.Background(), auth.Principal{Username: "guestUser"})
	if err := enforcer.Check(ctx, auth.ResourceTaskActivity, auth.ActionRead); err != nil {
		t.Fatalf("expected read to be allowed: %v", err)
	}
	err := enforcer.Check(ctx, auth.ResourceTaskActivity, auth.ActionDelete)
	var denied *auth.AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDeniedError, got %v", err)
	}
	if denied.Resource != auth.ResourceTaskActivity || denied.Action != auth.ActionDelete {
		t.Fatalf("denial must carry the required pair: %+v", denied)
	}
}

func TestGrantsFor(t *testing.T) {
	_, enforcer := newRBACFixture(t)
	grants, err := enforcer.GrantsFor(context.Background(), "guestUser")
	if err != nil {
		t.Fatalf("GrantsFor: %v", err)
	}
	if grants.Role != auth.RoleGuest || len(grants.Permissions) != 1 || grants.Permissions[0] != "TASK_ACTIVITY:READ" {
		t.Fatalf("unexpected grants: %+v", grants)
	}
}
