package kv_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/threadstore/pkg/kv"
	"github.com/dotcommander/threadstore/pkg/kv/kvtest"
)

func newTestMemoryStore(t *testing.T, cfg kv.Config) kv.Store {
	t.Helper()
	s := kv.NewMemoryStore(cfg)
	t.Cleanup(s.Shutdown)
	return s
}

func TestMemoryStoreConformance(t *testing.T) {
	kvtest.Run(t, newTestMemoryStore)
}

func TestMemoryStoreGetRemovesExpiredEntry(t *testing.T) {
	clock := kvtest.NewClock()
	s := kv.NewMemoryStore(kv.Config{Now: clock.Now})
	t.Cleanup(s.Shutdown)

	require.NoError(t, s.SetWithTTL("a", time.Second, "v"))
	require.Equal(t, 1, s.Len())

	clock.Advance(2 * time.Second)
	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Zero(t, s.Len(), "expired entry is removed by the read that finds it")
}

func TestMemoryStoreKeepsNonUTF8Bytes(t *testing.T) {
	s := newTestMemoryStore(t, kv.Config{})

	require.NoError(t, s.SetWithTTL("k", time.Hour, "a\xffb"))
	got, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "a\xffb", got)
}

func TestMemoryStoreBackgroundSweep(t *testing.T) {
	clock := kvtest.NewClock()
	s := kv.NewMemoryStore(kv.Config{Now: clock.Now, SweepInterval: 10 * time.Millisecond})
	t.Cleanup(s.Shutdown)

	require.NoError(t, s.SetWithTTL("short", time.Second, "v"))
	require.NoError(t, s.SetWithTTL("long", time.Hour, "v"))
	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool { return s.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryStoreRealClockExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps")
	}
	s := kv.NewMemoryStore(kv.DefaultConfig())
	t.Cleanup(s.Shutdown)

	require.NoError(t, s.SetWithTTL("x", time.Second, "bye"))
	got, ok := s.Get("x")
	require.True(t, ok)
	require.Equal(t, "bye", got)

	// The read above slid the expiry to three hours; overwrite to restore 1s.
	require.NoError(t, s.SetWithTTL("x", time.Second, "bye"))
	time.Sleep(1500 * time.Millisecond)
	_, ok = s.Get("x")
	assert.False(t, ok)
}
