// Package kvtest is a conformance suite every kv.Store backend must pass.
package kvtest

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/threadstore/pkg/kv"
)

// Factory builds the backend under test from cfg. It fills in
// backend-specific fields (directory, database path) and must register
// Shutdown with t.Cleanup.
type Factory func(t *testing.T, cfg kv.Config) kv.Store

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at a realistic instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const defaultTTL = 10 * time.Minute

func newStore(t *testing.T, f Factory, sliding bool) (kv.Store, *Clock) {
	t.Helper()
	clock := NewClock()
	s := f(t, kv.Config{
		DefaultTTL:  defaultTTL,
		SlidingTTL:  sliding,
		LockTimeout: 2 * time.Second,
		Now:         clock.Now,
	})
	return s, clock
}

// Run executes the suite against the backend built by f.
func Run(t *testing.T, f Factory) {
	t.Run("SetThenGet", func(t *testing.T) { testSetThenGet(t, f) })
	t.Run("MissingKey", func(t *testing.T) { testMissingKey(t, f) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, f) })
	t.Run("Expiry", func(t *testing.T) { testExpiry(t, f) })
	t.Run("SlidingKeepsActiveKeyAlive", func(t *testing.T) { testSlidingKeepsAlive(t, f) })
	t.Run("SlidingUsesConfiguredTTL", func(t *testing.T) { testSlidingUsesConfiguredTTL(t, f) })
	t.Run("FixedExpiryIgnoresReads", func(t *testing.T) { testFixedExpiry(t, f) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, f) })
	t.Run("SweepRemovesOnlyExpired", func(t *testing.T) { testSweep(t, f) })
	t.Run("ConcurrentWritersDistinctKeys", func(t *testing.T) { testConcurrentWriters(t, f) })
	t.Run("KeysWithSeparators", func(t *testing.T) { testKeysWithSeparators(t, f) })
	t.Run("NonUTF8ValueIsExactOrRejected", func(t *testing.T) { testNonUTF8Value(t, f) })
	t.Run("ShutdownIsIdempotent", func(t *testing.T) { testShutdownIdempotent(t, f) })
}

func testSetThenGet(t *testing.T, f Factory) {
	s, _ := newStore(t, f, false)

	require.NoError(t, s.SetWithTTL("a", time.Hour, "hello"))
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "hello", got)

	require.NoError(t, kv.Setex(s, "b", time.Hour, ""))
	got, ok = s.Get("b")
	require.True(t, ok, "empty values are values")
	assert.Equal(t, "", got)
}

func testMissingKey(t *testing.T, f Factory) {
	s, _ := newStore(t, f, true)

	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func testOverwrite(t *testing.T, f Factory) {
	s, clock := newStore(t, f, false)

	require.NoError(t, s.SetWithTTL("k", time.Second, "old"))
	require.NoError(t, s.SetWithTTL("k", time.Hour, "new"))

	clock.Advance(2 * time.Second)
	got, ok := s.Get("k")
	require.True(t, ok, "overwrite must carry the new expiry")
	assert.Equal(t, "new", got)
}

func testExpiry(t *testing.T, f Factory) {
	s, clock := newStore(t, f, true)

	require.NoError(t, s.SetWithTTL("x", time.Second, "bye"))
	clock.Advance(999 * time.Millisecond)
	_, ok := s.Get("x")
	require.True(t, ok)

	s2, clock2 := newStore(t, f, false)
	require.NoError(t, s2.SetWithTTL("x", time.Second, "bye"))
	clock2.Advance(time.Second)
	_, ok = s2.Get("x")
	assert.False(t, ok, "an entry is absent from its expiry instant on")

	clock2.Advance(time.Hour)
	_, ok = s2.Get("x")
	assert.False(t, ok)
}

func testSlidingKeepsAlive(t *testing.T, f Factory) {
	s, clock := newStore(t, f, true)

	require.NoError(t, s.SetWithTTL("conv", defaultTTL, "turns"))
	for i := range 10 {
		clock.Advance(defaultTTL / 2)
		got, ok := s.Get("conv")
		require.True(t, ok, "read %d", i)
		require.Equal(t, "turns", got)
	}

	clock.Advance(defaultTTL)
	_, ok := s.Get("conv")
	assert.False(t, ok, "an idle conversation still expires")
}

func testSlidingUsesConfiguredTTL(t *testing.T, f Factory) {
	s, clock := newStore(t, f, true)

	// The extension is DefaultTTL, not the entry's own longer TTL.
	require.NoError(t, s.SetWithTTL("long", 24*time.Hour, "v"))
	_, ok := s.Get("long")
	require.True(t, ok)

	clock.Advance(defaultTTL + time.Second)
	_, ok = s.Get("long")
	assert.False(t, ok)
}

func testFixedExpiry(t *testing.T, f Factory) {
	s, clock := newStore(t, f, false)

	require.NoError(t, s.SetWithTTL("conv", defaultTTL, "turns"))
	clock.Advance(defaultTTL / 2)
	_, ok := s.Get("conv")
	require.True(t, ok)

	clock.Advance(defaultTTL/2 + time.Second)
	_, ok = s.Get("conv")
	assert.False(t, ok, "reads must not extend the original expiry")
}

func testDelete(t *testing.T, f Factory) {
	s, _ := newStore(t, f, false)

	require.NoError(t, s.SetWithTTL("k", time.Hour, "v"))
	require.NoError(t, s.Delete("k"))
	_, ok := s.Get("k")
	assert.False(t, ok)

	require.NoError(t, s.Delete("never-stored"))
}

func testSweep(t *testing.T, f Factory) {
	s, clock := newStore(t, f, false)

	require.NoError(t, s.SetWithTTL("expired_key", time.Second, "expired_value"))
	require.NoError(t, s.SetWithTTL("valid_key", time.Hour, "valid_value"))
	clock.Advance(1500 * time.Millisecond)

	removed, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, ok := s.Get("valid_key")
	require.True(t, ok)
	assert.Equal(t, "valid_value", got)

	removed, err = s.Sweep()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func testConcurrentWriters(t *testing.T, f Factory) {
	s, _ := newStore(t, f, true)

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("concurrent_key_%d", i)
			want := fmt.Sprintf("value_%d", i)
			if err := s.SetWithTTL(key, time.Hour, want); err != nil {
				errs <- err
				return
			}
			got, ok := s.Get(key)
			if !ok || got != want {
				errs <- fmt.Errorf("%s: got %q (found=%v), want %q", key, got, ok, want)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func testKeysWithSeparators(t *testing.T, f Factory) {
	s, _ := newStore(t, f, false)

	require.NoError(t, s.SetWithTTL("thread:12345-abcd/special", time.Hour, "sanitized_value"))
	got, ok := s.Get("thread:12345-abcd/special")
	require.True(t, ok)
	assert.Equal(t, "sanitized_value", got)
}

// A backend either returns the exact bytes it was given or refuses them up
// front; it never hands back a different string.
func testNonUTF8Value(t *testing.T, f Factory) {
	s, _ := newStore(t, f, false)

	const value = "a\xffb"
	err := s.SetWithTTL("bytes", time.Hour, value)
	if err != nil {
		require.ErrorIs(t, err, kv.ErrInvalidValue)
		_, ok := s.Get("bytes")
		assert.False(t, ok)
		return
	}
	got, ok := s.Get("bytes")
	require.True(t, ok)
	assert.Equal(t, value, got)
}

func testShutdownIdempotent(t *testing.T, f Factory) {
	s, _ := newStore(t, f, false)

	s.Shutdown()
	s.Shutdown()
}
