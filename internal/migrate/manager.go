// Package migrate applies the embedded schema migrations with golang-migrate.
package migrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Manager runs schema migrations against a PostgreSQL URL.
type Manager struct {
	m *migrate.Migrate
}

// Status describes the applied schema version.
type Status struct {
	Version uint
	Dirty   bool
	Applied bool
}

// NewManager opens a migrator over the embedded migrations.
func NewManager(databaseURL string) (*Manager, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("migrate: database url is required")
	}
	source, err := iofs.New(migrationsFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Manager{m: m}, nil
}

// Close releases the source and database handles.
func (mg *Manager) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (mg *Manager) Up(ctx context.Context) error {
	return mg.run(ctx, func() error {
		if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
}

// Down rolls back the most recent applied migration.
func (mg *Manager) Down(ctx context.Context) error {
	return mg.run(ctx, func() error {
		if err := mg.m.Steps(-1); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return errors.New("no migrations applied")
			}
			return fmt.Errorf("rollback migration: %w", err)
		}
		return nil
	})
}

// Status reports the current schema version.
func (mg *Manager) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{Version: version, Dirty: dirty, Applied: true}, nil
}

// run executes fn and asks golang-migrate to stop between migrations once ctx
// is cancelled.
func (mg *Manager) run(ctx context.Context, fn func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case mg.m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	return ctx.Err()
}

// Files lists the embedded up migrations in apply order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReadFile returns the contents of an embedded migration.
func ReadFile(name string) ([]byte, error) {
	return migrationsFS.ReadFile("sql/" + name)
}
