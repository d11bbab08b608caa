package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dotcommander/threadstore/pkg/kv"
)

// Environment variables read by StoreConfig.
const (
	EnvBackend      = "STORAGE_BACKEND"
	EnvStorageDir   = "THREADSTORE_STORAGE_DIR"
	EnvSQLitePath   = "THREADSTORE_SQLITE_PATH"
	EnvTimeoutHours = "CONVERSATION_TIMEOUT_HOURS"
	EnvSlidingTTL   = "CONVERSATION_SLIDING_TTL"
	EnvLockTimeout  = "THREADSTORE_LOCK_TIMEOUT_MS"
)

// EnvLegacyStorageDir is the directory variable older deployments set. It is
// read only when EnvStorageDir is unset.
const EnvLegacyStorageDir = "ZEN_MCP_STORAGE_DIR"

// Resolved is a setting value along with the source of that decision, for
// debugging/reporting (e.g. "env(STORAGE_BACKEND)").
type Resolved[T any] struct {
	Value  T      `json:"value"`
	Source string `json:"source"`
}

// ResolveBackend picks the storage backend.
// Order of precedence:
// 1) CLI override (--backend)
// 2) Environment variable: STORAGE_BACKEND
// 3) config.yaml: backend
// 4) Default: file
// Unknown names fall back to file with a warning.
func ResolveBackend(logger *slog.Logger) (Resolved[kv.Backend], error) {
	name, source, err := resolveString(getOverrides().Backend, "--backend",
		func(s Settings) string { return s.Backend }, EnvBackend)
	if err != nil {
		return Resolved[kv.Backend]{}, err
	}
	if name == "" {
		return Resolved[kv.Backend]{Value: kv.BackendFile, Source: "default(file)"}, nil
	}
	return Resolved[kv.Backend]{Value: kv.ParseBackend(name, logger), Source: source}, nil
}

// ResolveStorageDir resolves the file backend directory, with the same
// precedence as ResolveBackend and a default of ~/.config/threadstore/threads.
// ZEN_MCP_STORAGE_DIR is honoured after THREADSTORE_STORAGE_DIR.
// Returns an absolute path.
func ResolveStorageDir() (Resolved[string], error) {
	dir, source, err := resolveString(getOverrides().StorageDir, "--storage-dir",
		func(s Settings) string { return s.StorageDir }, EnvStorageDir, EnvLegacyStorageDir)
	if err != nil {
		return Resolved[string]{}, err
	}
	if dir == "" {
		d, err := kv.DefaultDir()
		if err != nil {
			return Resolved[string]{}, err
		}
		return Resolved[string]{Value: d, Source: "default(~/.config/threadstore/threads)"}, nil
	}
	abs, err := absPath(dir)
	return Resolved[string]{Value: abs, Source: source}, err
}

// ResolveSQLitePath resolves the sqlite backend database file.
// Order of precedence: THREADSTORE_SQLITE_PATH, config.yaml sqlite_path,
// default ~/.config/threadstore/threads.db.
func ResolveSQLitePath() (Resolved[string], error) {
	path, source, err := resolveString("", "",
		func(s Settings) string { return s.SQLitePath }, EnvSQLitePath)
	if err != nil {
		return Resolved[string]{}, err
	}
	if path == "" {
		p, err := kv.DefaultSQLitePath()
		if err != nil {
			return Resolved[string]{}, err
		}
		return Resolved[string]{Value: p, Source: "default(~/.config/threadstore/threads.db)"}, nil
	}
	if path == ":memory:" {
		return Resolved[string]{Value: path, Source: source}, nil
	}
	abs, err := absPath(path)
	return Resolved[string]{Value: abs, Source: source}, err
}

// StoreConfig assembles the kv.Config for this process from flags,
// environment and config.yaml. Invalid numeric or boolean environment
// values are logged and the next source is used.
func StoreConfig(logger *slog.Logger) (kv.Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := LoadSettings()
	if err != nil {
		return kv.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	backend, err := ResolveBackend(logger)
	if err != nil {
		return kv.Config{}, err
	}
	cfg := kv.DefaultConfig()
	cfg.Backend = backend.Value
	cfg.Logger = logger

	if backend.Value == kv.BackendFile {
		dir, err := ResolveStorageDir()
		if err != nil {
			return kv.Config{}, err
		}
		cfg.Dir = dir.Value
	}
	if backend.Value == kv.BackendSQLite {
		path, err := ResolveSQLitePath()
		if err != nil {
			return kv.Config{}, err
		}
		cfg.SQLitePath = path.Value
	}

	if hours, ok := envInt(logger, EnvTimeoutHours); ok && hours > 0 {
		cfg.DefaultTTL = time.Duration(hours) * time.Hour
	} else if s.TimeoutHours != nil && *s.TimeoutHours > 0 {
		cfg.DefaultTTL = time.Duration(*s.TimeoutHours) * time.Hour
	}

	if sliding, ok := envBool(logger, EnvSlidingTTL); ok {
		cfg.SlidingTTL = sliding
	} else if s.SlidingTTL != nil {
		cfg.SlidingTTL = *s.SlidingTTL
	}

	if ms, ok := envInt(logger, EnvLockTimeout); ok && ms > 0 {
		cfg.LockTimeout = time.Duration(ms) * time.Millisecond
	} else if s.LockTimeoutMS != nil && *s.LockTimeoutMS > 0 {
		cfg.LockTimeout = time.Duration(*s.LockTimeoutMS) * time.Millisecond
	}
	return cfg, nil
}

// resolveString applies flag > env > config.yaml for one string setting.
// envs are tried in order. An empty result means "use the default".
func resolveString(override, flag string, fromSettings func(Settings) string, envs ...string) (string, string, error) {
	if override != "" {
		return override, "cli(" + flag + ")", nil
	}
	for _, env := range envs {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v, "env(" + env + ")", nil
		}
	}
	s, err := LoadSettings()
	if err != nil {
		return "", "", fmt.Errorf("failed to load config: %w", err)
	}
	if v := strings.TrimSpace(fromSettings(s)); v != "" {
		return v, fmt.Sprintf("config(%s)", settingsPath), nil
	}
	return "", "", nil
}

func envInt(logger *slog.Logger, name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("ignoring invalid integer environment variable", "name", name, "value", raw)
		return 0, false
	}
	return n, true
}

func envBool(logger *slog.Logger, name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Warn("ignoring invalid boolean environment variable", "name", name, "value", raw)
		return false, false
	}
	return b, true
}

// absPath expands a leading ~/ and makes path absolute.
func absPath(path string) (string, error) {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}
