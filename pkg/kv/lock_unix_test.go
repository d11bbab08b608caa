//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package kv

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func holdLock(t *testing.T, path string, how int) func() {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	require.NoError(t, unix.Flock(int(f.Fd()), how))
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}
}

func TestLockStrategyIsFlock(t *testing.T) {
	assert.Equal(t, "flock", LockStrategy())
}

func TestWriteTimesOutBehindHeldLock(t *testing.T) {
	s, err := NewFileStore(Config{Dir: t.TempDir(), LockTimeout: 50 * time.Millisecond, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	require.NoError(t, s.SetWithTTL("held", time.Hour, "before"))
	release := holdLock(t, s.Path("held"), unix.LOCK_EX)
	defer release()

	err = s.SetWithTTL("held", time.Hour, "after")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)

	var lte *LockTimeoutError
	require.True(t, errors.As(err, &lte))
	assert.Equal(t, s.Path("held"), lte.Path)
	assert.Equal(t, "LOCK_TIMEOUT", lte.ErrorCode())
	assert.GreaterOrEqual(t, lte.Waited, 40*time.Millisecond)
}

func TestReadTimesOutAsMissAndKeepsFile(t *testing.T) {
	s, err := NewFileStore(Config{Dir: t.TempDir(), LockTimeout: 50 * time.Millisecond, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	require.NoError(t, s.SetWithTTL("held", time.Hour, "v"))
	release := holdLock(t, s.Path("held"), unix.LOCK_EX)

	_, ok := s.Get("held")
	assert.False(t, ok)
	assert.FileExists(t, s.Path("held"), "a lock timeout is not corruption")

	release()
	got, ok := s.Get("held")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestSharedLocksDoNotBlockReaders(t *testing.T) {
	s, err := NewFileStore(Config{Dir: t.TempDir(), LockTimeout: 50 * time.Millisecond, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	require.NoError(t, s.SetWithTTL("k", time.Hour, "v"))
	release := holdLock(t, s.Path("k"), unix.LOCK_SH)
	defer release()

	got, ok := s.Get("k")
	require.True(t, ok, "fixed-expiry reads take a shared lock")
	assert.Equal(t, "v", got)
}

func TestLockTimeoutErrorDetails(t *testing.T) {
	err := &LockTimeoutError{Path: "/tmp/x.json", Waited: 1234567 * time.Microsecond}
	assert.Contains(t, err.Error(), "/tmp/x.json")
	assert.Equal(t, "1.235s", err.Context()["waited"])
	assert.Contains(t, err.SuggestedAction(), "/tmp/x.json")
	assert.True(t, errors.Is(err, ErrLockTimeout))
}
