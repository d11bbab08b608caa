package kv

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend names a storage implementation.
type Backend string

const (
	// BackendMemory keeps entries in process memory.
	BackendMemory Backend = "memory"
	// BackendFile keeps one JSON file per key in a shared directory.
	BackendFile Backend = "file"
	// BackendSQLite keeps entries in a shared SQLite database.
	BackendSQLite Backend = "sqlite"
)

const (
	// DefaultTTL is the conversation timeout used for sliding extensions and
	// sweep interval derivation when Config.DefaultTTL is unset.
	DefaultTTL = 3 * time.Hour

	// DefaultLockTimeout bounds how long a FileStore waits for a file lock.
	DefaultLockTimeout = 10 * time.Second

	minMemorySweepInterval = 5 * time.Minute
	minFileSweepInterval   = time.Minute
)

// Config configures a backend. The zero value is usable except for
// SlidingTTL, which callers must set explicitly; see DefaultConfig.
type Config struct {
	Backend Backend

	// Dir is the FileStore directory. Empty means DefaultDir().
	Dir string

	// SQLitePath is the SQLiteStore database file. Empty means DefaultSQLitePath().
	SQLitePath string

	// DefaultTTL is the amount a sliding read extends an entry by, and the
	// base for the sweep interval.
	DefaultTTL time.Duration

	// SlidingTTL makes a successful Get reset the entry's expiry to
	// now+DefaultTTL.
	SlidingTTL bool

	// LockTimeout bounds file lock acquisition (FileStore only).
	LockTimeout time.Duration

	// SweepInterval overrides the derived background sweep interval.
	SweepInterval time.Duration

	Logger   *slog.Logger
	Recorder Recorder

	// Now is the clock. Tests replace it to move time without sleeping.
	Now func() time.Time
}

// DefaultConfig returns the configuration used when nothing is configured:
// file backend, three hour timeout, sliding TTL enabled.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendFile,
		DefaultTTL:  DefaultTTL,
		SlidingTTL:  true,
		LockTimeout: DefaultLockTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// memorySweepInterval runs the in-memory sweep at a tenth of the timeout,
// never more often than every five minutes.
func (c Config) memorySweepInterval() time.Duration {
	if c.SweepInterval > 0 {
		return c.SweepInterval
	}
	return max(c.DefaultTTL/10, minMemorySweepInterval)
}

// diskSweepInterval runs persistent sweeps at a sixtieth of the timeout,
// never more often than every minute.
func (c Config) diskSweepInterval() time.Duration {
	if c.SweepInterval > 0 {
		return c.SweepInterval
	}
	return max(c.DefaultTTL/60, minFileSweepInterval)
}

// ParseBackend maps a configured name to a Backend. Unrecognized names,
// including the empty string, select BackendFile; non-empty ones are logged
// as a warning.
func ParseBackend(name string, logger *slog.Logger) Backend {
	switch Backend(strings.ToLower(strings.TrimSpace(name))) {
	case BackendMemory:
		return BackendMemory
	case BackendSQLite:
		return BackendSQLite
	case BackendFile, "":
		return BackendFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("unknown storage backend, defaulting to file storage", "backend", name)
	return BackendFile
}

// Open builds the backend selected by cfg.Backend.
func Open(cfg Config) (Store, error) {
	cfg = cfg.withDefaults()
	switch ParseBackend(string(cfg.Backend), cfg.Logger) {
	case BackendMemory:
		return NewMemoryStore(cfg), nil
	case BackendSQLite:
		return NewSQLiteStore(cfg)
	default:
		return NewFileStore(cfg)
	}
}

// DefaultDir is the per-user directory FileStore uses when Config.Dir is empty.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("kv: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "threadstore", "threads"), nil
}

// DefaultSQLitePath is the database SQLiteStore uses when Config.SQLitePath is empty.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("kv: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "threadstore", "threads.db"), nil
}
