package kv

import (
	"os"
	"time"
)

// locker is the advisory locking strategy, picked once per process by
// platformLocker. Cooperating processes must all use the same strategy.
type locker interface {
	// lock acquires a shared or exclusive lock on f, waiting up to timeout.
	lock(f *os.File, exclusive bool, timeout time.Duration) error
	unlock(f *os.File)
	String() string
}

var fileLocker = platformLocker()

// LockStrategy names the locking strategy in use: "flock", or "none" on
// platforms without advisory locks, where concurrent writers from several
// processes may interleave.
func LockStrategy() string {
	return fileLocker.String()
}

// noLocker is the best-effort strategy for platforms without flock.
type noLocker struct{}

func (noLocker) lock(*os.File, bool, time.Duration) error { return nil }
func (noLocker) unlock(*os.File)                          {}
func (noLocker) String() string                           { return "none" }
