package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ammonsd/activitytracking/internal/auth"
	"github.com/ammonsd/activitytracking/internal/ids"
)

// FindByUsername loads the account, its role and the role's permissions with a
// single joined query. A user without a matching role row is returned roleless.
func (s *Store) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.username, u.password_hash, u.enabled, u.account_locked,
		       u.failed_login_attempts, u.email, u.expiration_date, u.force_password_update,
		       u.created_at, u.last_login,
		       r.id, r.name, r.description,
		       p.id, p.resource, p.action, p.description
		from users u
		left join roles r on r.id = u.role_id
		left join role_permissions rp on rp.role_id = r.id
		left join permissions p on p.id = rp.permission_id
		where u.username = $1
		order by p.resource, p.action
	`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var u *auth.User
	for rows.Next() {
		var (
			row                        auth.User
			email                      sql.NullString
			expires, lastLogin         sql.NullTime
			roleID, roleName, roleDesc sql.NullString
			grant                      grantColumns
		)
		dest := []any{&row.ID, &row.Username, &row.PasswordHash, &row.Enabled, &row.AccountLocked,
			&row.FailedLoginAttempts, &email, &expires, &row.ForcePasswordUpdate,
			&row.CreatedAt, &lastLogin,
			&roleID, &roleName, &roleDesc}
		if err := rows.Scan(append(dest, grant.targets()...)...); err != nil {
			return nil, err
		}
		if u == nil {
			row.Email = email.String
			row.ExpirationDate = timePtr(expires)
			row.LastLogin = timePtr(lastLogin)
			if roleID.Valid {
				row.Role = &auth.Role{ID: roleID.String, Name: roleName.String, Description: roleDesc.String}
			}
			u = &row
		}
		grant.appendTo(u.Role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if u == nil {
		return nil, auth.ErrNotFound
	}
	return u, nil
}

// CreateUser inserts the account and, when historyLimit > 0, seeds its password
// history with the initial hash in the same transaction.
func (s *Store) CreateUser(ctx context.Context, u *auth.User, historyLimit int) error {
	if s.db == nil {
		return errNoDB
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	var roleID sql.NullString
	if u.Role != nil {
		roleID = nullString(u.Role.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into users (id, username, password_hash, role_id, enabled, account_locked,
		                   failed_login_attempts, email, expiration_date, force_password_update, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Username, u.PasswordHash, roleID, u.Enabled, u.AccountLocked,
		u.FailedLoginAttempts, nullString(u.Email), nullTime(u.ExpirationDate), u.ForcePasswordUpdate, u.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrAlreadyExists
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: unknown role", auth.ErrInvalidInput)
			}
		}
		return err
	}
	if historyLimit > 0 {
		if _, err := tx.ExecContext(ctx, `
			insert into password_history (id, user_id, password_hash, changed_at)
			values ($1, $2, $3, $4)
		`, ids.New(), u.ID, u.PasswordHash, u.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set failed_login_attempts = 0, last_login = $2
		where id = $1
	`, userID, at)
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
	return nil
}

// RecordLoginFailure increments the failure counter and locks the account once
// it reaches lockThreshold, in a single statement.
func (s *Store) RecordLoginFailure(ctx context.Context, userID string, lockThreshold int) (int, bool, error) {
	if s.db == nil {
		return 0, false, errNoDB
	}
	var (
		attempts int
		locked   bool
	)
	err := s.db.QueryRowContext(ctx, `
		update users
		set failed_login_attempts = failed_login_attempts + 1,
		    account_locked = account_locked or ($2 > 0 and failed_login_attempts + 1 >= $2)
		where id = $1
		returning failed_login_attempts, account_locked
	`, userID, lockThreshold).Scan(&attempts, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, auth.ErrNotFound
	}
	if err != nil {
		return 0, false, err
	}
	return attempts, locked, nil
}
