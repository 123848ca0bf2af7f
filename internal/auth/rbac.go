package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Enforcer answers permission questions against the persisted role model.
// Nothing is cached: every check re-reads the user, role and grants.
type Enforcer struct {
	users UserStore
	now   func() time.Time
}

// NewEnforcer constructs an Enforcer backed by users.
func NewEnforcer(users UserStore) (*Enforcer, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	return &Enforcer{users: users, now: time.Now}, nil
}

// UserHasPermission reports whether username's role grants permissionKey.
// Unknown, inactive and roleless users are denied.
func (e *Enforcer) UserHasPermission(ctx context.Context, username, permissionKey string) (bool, error) {
	username = strings.TrimSpace(username)
	permissionKey = strings.TrimSpace(permissionKey)
	if username == "" || permissionKey == "" {
		return false, nil
	}
	user, err := e.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load user %s: %w", username, err)
	}
	if !user.Active(e.now()) || user.Role == nil {
		return false, nil
	}
	return user.Role.HasPermission(permissionKey), nil
}

// Check enforces resource:action for the principal carried by ctx. It returns
// ErrUnauthenticated without a principal and *AccessDeniedError on denial.
func (e *Enforcer) Check(ctx context.Context, resource, action string) error {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	allowed, err := e.UserHasPermission(ctx, principal.Username, PermissionKey(resource, action))
	if err != nil {
		return err
	}
	if !allowed {
		return &AccessDeniedError{Username: principal.Username, Resource: resource, Action: action}
	}
	return nil
}

// Grants describes the caller's current role and permission keys.
type Grants struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// GrantsFor returns the role and permission keys currently held by username.
func (e *Enforcer) GrantsFor(ctx context.Context, username string) (Grants, error) {
	user, err := e.users.FindByUsername(ctx, username)
	if err != nil {
		return Grants{}, err
	}
	if user.Role == nil {
		return Grants{Permissions: []string{}}, nil
	}
	return Grants{Role: user.Role.Name, Permissions: user.Role.PermissionKeys()}, nil
}
