package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ammonsd/activitytracking/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var userCols = []string{"id", "username", "password_hash", "enabled", "account_locked",
	"failed_login_attempts", "email", "expiration_date", "force_password_update", "created_at", "last_login",
	"role_id", "role_name", "role_description",
	"permission_id", "resource", "action", "permission_description"}

var roleCols = []string{"id", "name", "description", "permission_id", "resource", "action", "permission_description"}

func TestFindByUsernameResolvesRolePermissionsInOneQuery(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("from users u\\s+left join roles").WithArgs("alice").WillReturnRows(sqlmock.NewRows(userCols).
		AddRow("u1", "alice", "hash", true, false, 2, "alice@example.com", nil, false, created, nil,
			"r1", "USER", nil, "p2", "TASK_ACTIVITY", "CREATE", nil).
		AddRow("u1", "alice", "hash", true, false, 2, "alice@example.com", nil, false, created, nil,
			"r1", "USER", nil, "p1", "TASK_ACTIVITY", "READ", "read tasks"))

	u, err := store.FindByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if u.Role == nil || u.Role.Name != "USER" || len(u.Role.Permissions) != 2 {
		t.Fatalf("unexpected role: %+v", u.Role)
	}
	if !u.Role.HasPermission("TASK_ACTIVITY:CREATE") || u.Role.Permissions[1].Description != "read tasks" {
		t.Fatalf("permissions not resolved: %+v", u.Role.Permissions)
	}
	if u.Email != "alice@example.com" || u.FailedLoginAttempts != 2 || u.LastLogin != nil || u.ExpirationDate != nil {
		t.Fatalf("unexpected user: %+v", u)
	}
	expectationsMet(t, mock)
}

func TestFindByUsernameNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from users").WithArgs("ghost").WillReturnRows(sqlmock.NewRows(userCols))
	if _, err := store.FindByUsername(context.Background(), "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestFindByUsernameWithoutRoleIsRoleless(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from users").WithArgs("bob").WillReturnRows(sqlmock.NewRows(userCols).
		AddRow("u2", "bob", "hash", true, false, 0, nil, nil, false, time.Now(), nil,
			nil, nil, nil, nil, nil, nil, nil))

	u, err := store.FindByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if u.Role != nil {
		t.Fatalf("expected roleless user, got %+v", u.Role)
	}
	expectationsMet(t, mock)
}

func TestFindByUsernameRoleWithoutGrants(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from users").WithArgs("carol").WillReturnRows(sqlmock.NewRows(userCols).
		AddRow("u3", "carol", "hash", true, false, 0, nil, nil, false, time.Now(), nil,
			"r3", "GUEST", nil, nil, nil, nil, nil))

	u, err := store.FindByUsername(context.Background(), "carol")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if u.Role == nil || u.Role.Name != "GUEST" || len(u.Role.Permissions) != 0 {
		t.Fatalf("unexpected role: %+v", u.Role)
	}
	expectationsMet(t, mock)
}

func TestFindRoleByNameNormalizes(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from roles r").WithArgs("ADMIN").WillReturnRows(sqlmock.NewRows(roleCols).
		AddRow("r9", "ADMIN", "administrators", nil, nil, nil, nil))

	role, err := store.FindRoleByName(context.Background(), " admin ")
	if err != nil {
		t.Fatalf("FindRoleByName: %v", err)
	}
	if role.Description != "administrators" || len(role.Permissions) != 0 {
		t.Fatalf("unexpected role: %+v", role)
	}
	expectationsMet(t, mock)
}

func TestFindRoleByNameUnknown(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from roles r").WithArgs("NOPE").WillReturnRows(sqlmock.NewRows(roleCols))
	if _, err := store.FindRoleByName(context.Background(), "nope"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCreateUserSeedsHistoryInTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	u := &auth.User{Username: "carol", PasswordHash: "h0", Role: &auth.Role{ID: "r1"}, Enabled: true}

	mock.ExpectBegin()
	mock.ExpectExec("insert into users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into password_history").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "h0", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.CreateUser(context.Background(), u, 5); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("expected id and created time to be assigned: %+v", u)
	}
	expectationsMet(t, mock)
}

func TestCreateUserDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into users").WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	err := store.CreateUser(context.Background(), &auth.User{Username: "carol", PasswordHash: "h0"}, 5)
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRecordLoginFailureReturnsLockState(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("update users").WithArgs("u1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "account_locked"}).AddRow(5, true))

	attempts, locked, err := store.RecordLoginFailure(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	if attempts != 5 || !locked {
		t.Fatalf("unexpected result attempts=%d locked=%v", attempts, locked)
	}
	expectationsMet(t, mock)
}

func TestRecordLoginSuccessUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update users").WithArgs("nope", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.RecordLoginSuccess(context.Background(), "nope", time.Now()); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestChangePasswordTrimsHistory(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("update users").WithArgs("u1", "h6").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into password_history").WithArgs(sqlmock.AnyArg(), "u1", "h6", at).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("delete from password_history").WithArgs("u1", 5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.ChangePassword(context.Background(), "u1", "h6", at, 5); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	expectationsMet(t, mock)
}

func TestChangePasswordRollsBackOnHistoryFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("update users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into password_history").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := store.ChangePassword(context.Background(), "u1", "h6", time.Now(), 5); err == nil {
		t.Fatalf("expected error")
	}
	expectationsMet(t, mock)
}

func TestRecentPasswordHashes(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from password_history").WithArgs("u1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow("h5").AddRow("h4"))

	hashes, err := store.RecentPasswordHashes(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("RecentPasswordHashes: %v", err)
	}
	if len(hashes) != 2 || hashes[0] != "h5" {
		t.Fatalf("unexpected hashes: %v", hashes)
	}
	expectationsMet(t, mock)
}

func TestInsertRevokedTokenDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	tok := &auth.RevokedToken{JTI: "j1", Username: "alice", TokenType: auth.TokenTypeAccess, ExpirationTime: time.Now().Add(time.Hour), Reason: auth.ReasonLogout}

	mock.ExpectExec("insert into revoked_tokens").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into revoked_tokens").WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	if err := store.Insert(context.Background(), tok); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	dup := *tok
	dup.ID = ""
	if err := store.Insert(context.Background(), &dup); !errors.Is(err, auth.ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestExistsAndDeleteExpired(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("from revoked_tokens where jti").WithArgs("j1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("delete from revoked_tokens where expiration_time <=").WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	ok, err := store.Exists(context.Background(), "j1")
	if err != nil || !ok {
		t.Fatalf("Exists: %v %v", ok, err)
	}
	n, err := store.DeleteExpired(context.Background(), now)
	if err != nil || n != 3 {
		t.Fatalf("DeleteExpired: %d %v", n, err)
	}
	expectationsMet(t, mock)
}
