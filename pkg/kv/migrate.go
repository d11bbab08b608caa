package kv

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// migrate applies pending schema migrations. A lock file next to the
// database keeps two processes from migrating the same file at once.
func migrate(ctx context.Context, db *sql.DB, dbPath string, lockTimeout time.Duration) error {
	if dbPath != ":memory:" {
		unlock, err := lockMigrations(dbPath, lockTimeout)
		if err != nil {
			return fmt.Errorf("kv: migration lock: %w", err)
		}
		defer unlock()
	}

	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("kv: open migrations: %w", err)
	}
	// goose's dialect controls SQL generation, not the driver name; the
	// modernc driver registers itself as "sqlite".
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return fmt.Errorf("kv: init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("kv: run migrations: %w", err)
	}
	return nil
}

// lockMigrations takes an exclusive lock on <dbPath>.migrate.lock.
func lockMigrations(dbPath string, timeout time.Duration) (func(), error) {
	lockPath := dbPath + ".migrate.lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // G304: lockPath derived from configured dbPath
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}
	if err := fileLocker.lock(f, true, timeout); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		fileLocker.unlock(f)
		_ = f.Close()
	}, nil
}
