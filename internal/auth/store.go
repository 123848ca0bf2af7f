package auth

import (
	"context"
	"time"
)

// UserStore loads and updates accounts. FindByUsername returns the user with
// its role and the role's permissions resolved, or ErrNotFound.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u *User, historyLimit int) error
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error
	RecordLoginFailure(ctx context.Context, userID string, lockThreshold int) (attempts int, locked bool, err error)
}

// RoleStore resolves roles by their unique name.
type RoleStore interface {
	FindRoleByName(ctx context.Context, name string) (*Role, error)
}

// PasswordHistoryStore keeps the bounded ledger of previous password hashes.
// ChangePassword must update the live hash, append a history row and trim
// rows beyond keep in one transaction. keep <= 0 disables the ledger.
type PasswordHistoryStore interface {
	RecentPasswordHashes(ctx context.Context, userID string, limit int) ([]string, error)
	ChangePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time, keep int) error
}

// RevokedTokenStore persists blacklisted token identifiers. Insert returns
// ErrAlreadyRevoked when a row for the same jti exists.
type RevokedTokenStore interface {
	Insert(ctx context.Context, tok *RevokedToken) error
	Exists(ctx context.Context, jti string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
