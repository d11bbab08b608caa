//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package kv

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// removeUnderLock reports whether a file may be unlinked while a descriptor
// on it is open and locked.
const removeUnderLock = true

func platformLocker() locker { return flockLocker{} }

// flockLocker takes flock(2) locks. Locks belong to the open file
// description, so two descriptors in one process exclude each other just as
// two processes do, and the kernel drops them when the holder exits.
type flockLocker struct{}

func (flockLocker) lock(f *os.File, exclusive bool, timeout time.Duration) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	return retryLock(f.Name(), timeout, func() error {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return errLockBusy
		}
		if err != nil {
			return fmt.Errorf("kv: lock %s: %w", f.Name(), err)
		}
		return nil
	})
}

func (flockLocker) unlock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func (flockLocker) String() string { return "flock" }
