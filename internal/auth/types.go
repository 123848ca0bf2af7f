package auth

import (
	"strings"
	"time"
)

// TokenType distinguishes access from refresh credentials.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// RevocationReason records why a token was put on the blacklist.
type RevocationReason string

const (
	ReasonLogout           RevocationReason = "logout"
	ReasonPasswordChange   RevocationReason = "password_change"
	ReasonSecurityIncident RevocationReason = "security_incident"
	ReasonManual           RevocationReason = "manual"
)

// Valid reports whether r is one of the known revocation reasons.
func (r RevocationReason) Valid() bool {
	switch r {
	case ReasonLogout, ReasonPasswordChange, ReasonSecurityIncident, ReasonManual:
		return true
	}
	return false
}

// User is an application account. Every user holds at most one role.
type User struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	PasswordHash        string     `json:"-"`
	Role                *Role      `json:"role,omitempty"`
	Enabled             bool       `json:"enabled"`
	AccountLocked       bool       `json:"accountLocked"`
	FailedLoginAttempts int        `json:"failedLoginAttempts"`
	Email               string     `json:"email,omitempty"`
	ExpirationDate      *time.Time `json:"expirationDate,omitempty"`
	ForcePasswordUpdate bool       `json:"forcePasswordUpdate"`
	CreatedAt           time.Time  `json:"createdDate"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
}

// Expired reports whether the account expiration date has passed.
func (u *User) Expired(now time.Time) bool {
	return u.ExpirationDate != nil && !now.Before(*u.ExpirationDate)
}

// Active reports whether the account may authenticate at the given instant.
func (u *User) Active(now time.Time) bool {
	if u == nil {
		return false
	}
	return u.Enabled && !u.AccountLocked && !u.Expired(now)
}

// RoleNames returns the snapshot of granted role names embedded in tokens.
func (u *User) RoleNames() []string {
	if u == nil || u.Role == nil || u.Role.Name == "" {
		return nil
	}
	return []string{u.Role.Name}
}

// Role groups permissions.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// HasPermission reports whether the role grants the permission identified by key.
func (r *Role) HasPermission(key string) bool {
	if r == nil {
		return false
	}
	for _, p := range r.Permissions {
		if p.Key() == key {
			return true
		}
	}
	return false
}

// PermissionKeys lists the canonical keys granted by the role.
func (r *Role) PermissionKeys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		keys = append(keys, p.Key())
	}
	return keys
}

// Permission is a single grantable (resource, action) pair.
type Permission struct {
	ID          string `json:"id"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// Key returns the canonical "RESOURCE:ACTION" identifier.
func (p Permission) Key() string {
	return PermissionKey(p.Resource, p.Action)
}

// PermissionKey builds the canonical identifier for a resource/action pair.
func PermissionKey(resource, action string) string {
	return strings.ToUpper(strings.TrimSpace(resource)) + ":" + strings.ToUpper(strings.TrimSpace(action))
}

// RevokedToken is a blacklist entry for a single token identifier.
type RevokedToken struct {
	ID             string           `json:"id"`
	JTI            string           `json:"jti"`
	Username       string           `json:"username"`
	TokenType      TokenType        `json:"tokenType"`
	ExpirationTime time.Time        `json:"expirationTime"`
	RevokedAt      time.Time        `json:"revokedAt"`
	Reason         RevocationReason `json:"reason"`
}

// PasswordHistory is one retained password hash of a user.
type PasswordHistory struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	PasswordHash string    `json:"-"`
	ChangedAt    time.Time `json:"changedAt"`
}
