package kv

import (
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeperRunsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	sw := startSweeper("test", 5*time.Millisecond, func() (int, error) {
		calls.Add(1)
		return 0, nil
	}, discardLogger())

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, sw.stopAndWait(time.Second))

	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "no cycles after stop")
	assert.True(t, sw.stopAndWait(time.Second), "stopping twice is safe")
}

func TestSweeperSurvivesErrors(t *testing.T) {
	var calls atomic.Int32
	sw := startSweeper("test", 5*time.Millisecond, func() (int, error) {
		calls.Add(1)
		return 0, assert.AnError
	}, discardLogger())
	t.Cleanup(func() { sw.stopAndWait(time.Second) })

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestSweeperRegistrySharesOneSweeperPerDirectory(t *testing.T) {
	reg := &sweeperRegistry{entries: make(map[string]*registeredSweeper)}
	noop := func() (int, error) { return 0, nil }

	releaseA := reg.acquire("/threads", time.Hour, noop, discardLogger())
	releaseB := reg.acquire("/threads", time.Hour, noop, discardLogger())
	assert.Equal(t, 2, reg.refs("/threads"))

	e := reg.entries["/threads"]
	releaseA()
	releaseA()
	assert.Equal(t, 1, reg.refs("/threads"), "release is idempotent")

	releaseB()
	assert.Zero(t, reg.refs("/threads"))
	select {
	case <-e.sw.done:
	case <-time.After(time.Second):
		t.Fatal("sweeper still running after last release")
	}
}

func TestSweeperRegistryRunsNewestLiveRegistration(t *testing.T) {
	reg := &sweeperRegistry{entries: make(map[string]*registeredSweeper)}
	var calls []string
	named := func(name string) sweepFunc {
		return func() (int, error) {
			calls = append(calls, name)
			return 0, nil
		}
	}

	releaseA := reg.acquire("/threads", time.Hour, named("a"), discardLogger())
	releaseB := reg.acquire("/threads", time.Hour, named("b"), discardLogger())
	t.Cleanup(releaseA)
	e := reg.entries["/threads"]

	_, err := reg.sweep(e)
	require.NoError(t, err)
	releaseB()
	_, err = reg.sweep(e)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, calls)
}

// expiredRecorder counts Expired callbacks.
type expiredRecorder struct {
	nopRecorder
	n atomic.Int32
}

func (r *expiredRecorder) Expired(_ Backend, n int) { r.n.Add(int32(n)) }

func TestSharedSweeperReportsToLiveStore(t *testing.T) {
	dir := t.TempDir()
	first, second := &expiredRecorder{}, &expiredRecorder{}

	a, err := NewFileStore(Config{Dir: dir, Logger: discardLogger(), Recorder: first})
	require.NoError(t, err)
	b, err := NewFileStore(Config{Dir: dir, Logger: discardLogger(), Recorder: second})
	require.NoError(t, err)
	t.Cleanup(b.Shutdown)
	a.Shutdown()

	require.NoError(t, b.SetWithTTL("stale", -time.Second, "v"))

	fileSweepers.mu.Lock()
	e := fileSweepers.entries[b.Dir()]
	fileSweepers.mu.Unlock()
	require.NotNil(t, e)

	n, err := fileSweepers.sweep(e)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, first.n.Load(), "a shut down store no longer receives sweep counts")
	assert.Equal(t, int32(1), second.n.Load())
}

func TestFileStoresShareRegisteredSweeper(t *testing.T) {
	dir := t.TempDir()
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)

	a, err := NewFileStore(Config{Dir: dir, Logger: discardLogger()})
	require.NoError(t, err)
	b, err := NewFileStore(Config{Dir: dir, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, 2, fileSweepers.refs(abs))

	a.Shutdown()
	a.Shutdown()
	assert.Equal(t, 1, fileSweepers.refs(abs), "the remaining store keeps the sweeper alive")

	b.Shutdown()
	assert.Zero(t, fileSweepers.refs(abs))
}
