package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrAlreadyExists      = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrAccountDisabled    = errors.New("auth: account is disabled")
	ErrAccountLocked      = errors.New("auth: account is locked")
	ErrAccountExpired     = errors.New("auth: account has expired")
	ErrTokenRevoked       = errors.New("auth: token has been revoked")
	ErrAlreadyRevoked     = errors.New("auth: token already revoked")
	ErrWrongTokenType     = errors.New("auth: unexpected token type")
)

// AccessDeniedError is returned when an authenticated caller lacks the
// permission declared for an operation.
type AccessDeniedError struct {
	Username string
	Resource string
	Action   string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("auth: access denied: %s requires %s", e.Username, PermissionKey(e.Resource, e.Action))
}

// IsAccessDenied reports whether err carries an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
