package kv

import (
	"errors"
	"fmt"
	"time"
)

// ErrLockTimeout is matched by errors.Is for every *LockTimeoutError.
var ErrLockTimeout = errors.New("kv: lock acquisition timed out")

// ErrInvalidValue is returned by backends whose storage format cannot hold
// the value byte for byte.
var ErrInvalidValue = errors.New("kv: invalid value")

// errCorrupt marks a record that exists but cannot be decoded.
var errCorrupt = errors.New("kv: corrupt record")

// LockTimeoutError reports a file lock that was still held by another
// process after the configured wait.
type LockTimeoutError struct {
	Path   string
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("kv: lock on %s not acquired after %s", e.Path, e.Waited.Round(time.Millisecond))
}
func (e *LockTimeoutError) ErrorCode() string { return "LOCK_TIMEOUT" }
func (e *LockTimeoutError) Context() map[string]string {
	return map[string]string{
		"path":   e.Path,
		"waited": e.Waited.Round(time.Millisecond).String(),
	}
}
func (e *LockTimeoutError) SuggestedAction() string {
	return "retry; if it persists, look for a stuck process holding " + e.Path
}
func (e *LockTimeoutError) Is(target error) bool { return target == ErrLockTimeout }
