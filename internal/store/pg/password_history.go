package pg

import (
	"context"
	"time"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/ids"
)

func (s *Store) RecentPasswordHashes(ctx context.Context, userID string, limit int) ([]string, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select password_hash
		from password_history
		where user_id = $1
		order by changed_at desc, id desc
		limit $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// ChangePassword swaps the live hash, appends it to the history and trims the
// history to keep rows. Either all three happen or none do.
func (s *Store) ChangePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time, keep int) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update users
		set password_hash = $2, force_password_update = false
		where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}

	if keep > 0 {
		if _, err := tx.ExecContext(ctx, `
			insert into password_history (id, user_id, password_hash, changed_at)
			values ($1, $2, $3, $4)
		`, ids.New(), userID, passwordHash, changedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			delete from password_history
			where user_id = $1
			  and id not in (
			    select id from password_history
			    where user_id = $1
			    order by changed_at desc, id desc
			    limit $2
			  )
		`, userID, keep); err != nil {
			return err
		}
	}
	return tx.Commit()
}
