package app

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/threadstore/pkg/kv"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveBackend_Precedence(t *testing.T) {
	home, _ := isolateConfig(t)
	userConfigPath := writeUserConfig(t, home, "backend: sqlite\n")

	r, err := ResolveBackend(quietLogger())
	require.NoError(t, err)
	require.Equal(t, kv.BackendSQLite, r.Value)
	require.Equal(t, "config("+userConfigPath+")", r.Source)

	t.Setenv(EnvBackend, "memory")
	r, err = ResolveBackend(quietLogger())
	require.NoError(t, err)
	require.Equal(t, kv.BackendMemory, r.Value)
	require.Equal(t, "env(STORAGE_BACKEND)", r.Source)

	SetOverrides(Overrides{Backend: "file"})
	r, err = ResolveBackend(quietLogger())
	require.NoError(t, err)
	require.Equal(t, kv.BackendFile, r.Value)
	require.Equal(t, "cli(--backend)", r.Source)
}

func TestResolveBackend_DefaultAndUnknown(t *testing.T) {
	isolateConfig(t)

	r, err := ResolveBackend(quietLogger())
	require.NoError(t, err)
	require.Equal(t, kv.BackendFile, r.Value)
	require.Equal(t, "default(file)", r.Source)

	t.Setenv(EnvBackend, "redis")
	r, err = ResolveBackend(quietLogger())
	require.NoError(t, err)
	require.Equal(t, kv.BackendFile, r.Value)
}

func TestResolveStorageDir_Precedence(t *testing.T) {
	home, _ := isolateConfig(t)

	r, err := ResolveStorageDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "threadstore", "threads"), r.Value)
	require.Equal(t, "default(~/.config/threadstore/threads)", r.Source)

	writeUserConfig(t, home, "storage_dir: ~/conversations\n")
	resetSettingsStateForTest()
	r, err = ResolveStorageDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "conversations"), r.Value)

	envDir := filepath.Join(home, "env")
	t.Setenv(EnvStorageDir, envDir)
	r, err = ResolveStorageDir()
	require.NoError(t, err)
	require.Equal(t, envDir, r.Value)
	require.Equal(t, "env(THREADSTORE_STORAGE_DIR)", r.Source)

	cliDir := filepath.Join(home, "cli")
	SetOverrides(Overrides{StorageDir: cliDir})
	r, err = ResolveStorageDir()
	require.NoError(t, err)
	require.Equal(t, cliDir, r.Value)
	require.Equal(t, "cli(--storage-dir)", r.Source)
}

func TestResolveStorageDir_LegacyEnv(t *testing.T) {
	home, _ := isolateConfig(t)
	writeUserConfig(t, home, "storage_dir: ~/conversations\n")

	legacyDir := filepath.Join(home, "legacy")
	t.Setenv(EnvLegacyStorageDir, legacyDir)
	r, err := ResolveStorageDir()
	require.NoError(t, err)
	require.Equal(t, legacyDir, r.Value, "the legacy variable outranks config.yaml")
	require.Equal(t, "env(ZEN_MCP_STORAGE_DIR)", r.Source)

	envDir := filepath.Join(home, "env")
	t.Setenv(EnvStorageDir, envDir)
	r, err = ResolveStorageDir()
	require.NoError(t, err)
	require.Equal(t, envDir, r.Value)
	require.Equal(t, "env(THREADSTORE_STORAGE_DIR)", r.Source)
}

func TestResolveStorageDir_RelativeBecomesAbsolute(t *testing.T) {
	_, workdir := isolateConfig(t)
	t.Setenv(EnvStorageDir, "threads")

	r, err := ResolveStorageDir()
	require.NoError(t, err)
	wd, err := filepath.EvalSymlinks(workdir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(filepath.Dir(r.Value))
	require.NoError(t, err)
	require.Equal(t, wd, got)
	require.Equal(t, "threads", filepath.Base(r.Value))
}

func TestResolveSQLitePath(t *testing.T) {
	home, _ := isolateConfig(t)

	r, err := ResolveSQLitePath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "threadstore", "threads.db"), r.Value)

	t.Setenv(EnvSQLitePath, ":memory:")
	r, err = ResolveSQLitePath()
	require.NoError(t, err)
	require.Equal(t, ":memory:", r.Value)
	require.Equal(t, "env(THREADSTORE_SQLITE_PATH)", r.Source)
}

func TestStoreConfig_Defaults(t *testing.T) {
	home, _ := isolateConfig(t)

	cfg, err := StoreConfig(quietLogger())
	require.NoError(t, err)
	require.Equal(t, kv.BackendFile, cfg.Backend)
	require.Equal(t, filepath.Join(home, ".config", "threadstore", "threads"), cfg.Dir)
	require.Equal(t, 3*time.Hour, cfg.DefaultTTL)
	require.True(t, cfg.SlidingTTL)
	require.Equal(t, 10*time.Second, cfg.LockTimeout)
}

func TestStoreConfig_EnvBeatsConfigFile(t *testing.T) {
	home, _ := isolateConfig(t)
	writeUserConfig(t, home, "timeout_hours: 6\nsliding_ttl: false\nlock_timeout_ms: 250\n")

	cfg, err := StoreConfig(quietLogger())
	require.NoError(t, err)
	require.Equal(t, 6*time.Hour, cfg.DefaultTTL)
	require.False(t, cfg.SlidingTTL)
	require.Equal(t, 250*time.Millisecond, cfg.LockTimeout)

	t.Setenv(EnvTimeoutHours, "1")
	t.Setenv(EnvSlidingTTL, "true")
	t.Setenv(EnvLockTimeout, "75")
	cfg, err = StoreConfig(quietLogger())
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.DefaultTTL)
	require.True(t, cfg.SlidingTTL)
	require.Equal(t, 75*time.Millisecond, cfg.LockTimeout)
}

func TestStoreConfig_InvalidEnvFallsBack(t *testing.T) {
	home, _ := isolateConfig(t)
	writeUserConfig(t, home, "timeout_hours: 6\n")

	t.Setenv(EnvTimeoutHours, "three")
	t.Setenv(EnvSlidingTTL, "sometimes")
	t.Setenv(EnvLockTimeout, "-5")

	cfg, err := StoreConfig(quietLogger())
	require.NoError(t, err)
	require.Equal(t, 6*time.Hour, cfg.DefaultTTL, "falls back to config.yaml")
	require.True(t, cfg.SlidingTTL, "falls back to the default")
	require.Equal(t, kv.DefaultLockTimeout, cfg.LockTimeout)
}

func TestStoreConfig_SQLiteBackendUsesSQLitePath(t *testing.T) {
	home, _ := isolateConfig(t)
	t.Setenv(EnvBackend, "sqlite")

	cfg, err := StoreConfig(quietLogger())
	require.NoError(t, err)
	require.Equal(t, kv.BackendSQLite, cfg.Backend)
	require.Equal(t, filepath.Join(home, ".config", "threadstore", "threads.db"), cfg.SQLitePath)
	require.Empty(t, cfg.Dir)
}
