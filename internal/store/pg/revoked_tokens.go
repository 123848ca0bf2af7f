package pg

import (
	"context"
	"time"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/ids"
)

// Insert blacklists a token. A unique violation on jti means another caller
// got there first and is reported as auth.ErrAlreadyRevoked.
func (s *Store) Insert(ctx context.Context, tok *auth.RevokedToken) error {
	if s.db == nil {
		return errNoDB
	}
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	if tok.RevokedAt.IsZero() {
		tok.RevokedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens (id, jti, username, token_type, expiration_time, revoked_at, reason)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, tok.ID, tok.JTI, tok.Username, string(tok.TokenType), tok.ExpirationTime, tok.RevokedAt, string(tok.Reason))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrAlreadyRevoked
		}
		return err
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, jti string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from revoked_tokens where jti = $1)
	`, jti).Scan(&exists)
	return exists, err
}

// DeleteExpired removes entries whose token expired at or before now.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from revoked_tokens where expiration_time <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
