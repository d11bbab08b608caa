package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// busyTimeoutMS makes SQLite wait on a locked database before reporting
// SQLITE_BUSY; retrySQLite covers contention beyond it.
const busyTimeoutMS = 5000

// SQLiteStore keeps entries in one SQLite database in WAL mode. Processes
// opening the same database file share entries, with SQLite providing the
// cross-process locking.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	cfg     Config
	sweeper *sweeper
}

// NewSQLiteStore opens (or creates) the database at cfg.SQLitePath, applies
// migrations and starts the background sweep. Use ":memory:" for a private
// in-memory database.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	cfg = cfg.withDefaults()

	path := cfg.SQLitePath
	if path == "" {
		p, err := DefaultSQLitePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("kv: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", normalizeSQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("kv: open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and matches CLI scale.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	pragmas := []string{
		// busy_timeout first so the remaining pragmas wait on locks.
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMS),
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if err := retrySQLite(func() error {
			_, err := db.ExecContext(ctx, pragma)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("kv: set pragma %q: %w", pragma, err)
		}
	}

	if err := retrySQLite(func() error { return migrate(ctx, db, path, cfg.LockTimeout) }); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, path: path, cfg: cfg}
	interval := cfg.diskSweepInterval()
	s.sweeper = startSweeper(path, interval, s.Sweep, cfg.Logger)

	cfg.Logger.Info("sqlite storage initialized",
		"path", path,
		"timeout", cfg.DefaultTTL,
		"sweep_interval", interval,
		"sliding_ttl", cfg.SlidingTTL,
	)
	return s, nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// SetWithTTL upserts key with a fresh record.
func (s *SQLiteStore) SetWithTTL(key string, ttl time.Duration, value string) error {
	now := s.cfg.Now()
	err := retrySQLite(func() error {
		_, err := s.db.ExecContext(context.Background(), `
			INSERT INTO entries (key, value, expires_at, created_at, last_accessed_at)
			VALUES (?, ?, ?, ?, NULL)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				expires_at = excluded.expires_at,
				created_at = excluded.created_at,
				last_accessed_at = NULL
		`, key, value, epochSeconds(now.Add(ttl)), epochSeconds(now))
		return err
	})
	if err != nil {
		return fmt.Errorf("kv: store %s: %w", key, err)
	}
	s.cfg.Logger.Debug("stored key to sqlite", "key", key, "ttl", ttl)
	return nil
}

// Get returns the value for key if unexpired, deleting an expired row. With
// sliding TTL the lookup and the extension are one statement.
func (s *SQLiteStore) Get(key string) (string, bool) {
	ctx := context.Background()
	now := epochSeconds(s.cfg.Now())

	var value string
	err := retrySQLite(func() error {
		if s.cfg.SlidingTTL {
			extended := epochSeconds(s.cfg.Now().Add(s.cfg.DefaultTTL))
			return s.db.QueryRowContext(ctx, `
				UPDATE entries SET expires_at = ?, last_accessed_at = ?
				WHERE key = ? AND expires_at > ?
				RETURNING value
			`, extended, now, key, now).Scan(&value)
		}
		return s.db.QueryRowContext(ctx,
			`SELECT value FROM entries WHERE key = ? AND expires_at > ?`, key, now,
		).Scan(&value)
	})

	if errors.Is(err, sql.ErrNoRows) {
		s.deleteExpired(ctx, key, now)
		s.cfg.Recorder.Miss(BackendSQLite)
		return "", false
	}
	if err != nil {
		s.cfg.Logger.Warn("failed to read key", "key", key, "error", err)
		s.cfg.Recorder.Miss(BackendSQLite)
		return "", false
	}

	s.cfg.Logger.Debug("retrieved key from sqlite", "key", key, "sliding_ttl", s.cfg.SlidingTTL)
	s.cfg.Recorder.Hit(BackendSQLite)
	return value, true
}

func (s *SQLiteStore) deleteExpired(ctx context.Context, key string, now float64) {
	var res sql.Result
	err := retrySQLite(func() error {
		var err error
		res, err = s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ? AND expires_at <= ?`, key, now)
		return err
	})
	if err != nil {
		s.cfg.Logger.Warn("failed to remove expired key", "key", key, "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.cfg.Recorder.Expired(BackendSQLite, int(n))
		s.cfg.Logger.Debug("key expired and removed", "key", key)
	}
}

// Delete removes key.
func (s *SQLiteStore) Delete(key string) error {
	err := retrySQLite(func() error {
		_, err := s.db.ExecContext(context.Background(), `DELETE FROM entries WHERE key = ?`, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}

// Sweep deletes every expired row.
func (s *SQLiteStore) Sweep() (int, error) {
	var res sql.Result
	err := retrySQLite(func() error {
		var err error
		res, err = s.db.ExecContext(context.Background(),
			`DELETE FROM entries WHERE expires_at <= ?`, epochSeconds(s.cfg.Now()))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("kv: sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("kv: sweep: %w", err)
	}
	if n > 0 {
		s.cfg.Recorder.Expired(BackendSQLite, int(n))
	}
	return int(n), nil
}

// Shutdown stops the sweep and closes the database.
func (s *SQLiteStore) Shutdown() {
	if !s.sweeper.stopAndWait(time.Second) {
		s.cfg.Logger.Warn("sqlite sweeper did not stop in time")
	}
	if err := s.db.Close(); err != nil {
		s.cfg.Logger.Warn("failed to close sqlite database", "error", err)
	}
}

func normalizeSQLiteDSN(path string) string {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path
	}
	// mode=rwc => read/write/create. Without this, some environments open read-only.
	return "file:" + path + "?mode=rwc"
}
