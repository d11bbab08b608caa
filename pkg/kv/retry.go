package kv

import (
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errLockBusy is returned by a non-blocking lock attempt that lost.
var errLockBusy = errors.New("kv: lock busy")

// retryLock retries a non-blocking lock attempt with exponential backoff
// until it succeeds, fails permanently, or timeout elapses.
func retryLock(path string, timeout time.Duration, attempt func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = timeout
	b.RandomizationFactor = 0.1

	start := time.Now()
	err := backoff.Retry(func() error {
		err := attempt()
		if err == nil {
			return nil
		}
		if errors.Is(err, errLockBusy) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
	if errors.Is(err, errLockBusy) {
		return &LockTimeoutError{Path: path, Waited: time.Since(start)}
	}
	return err
}

// retrySQLite retries operation on transient SQLite contention.
func retrySQLite(operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	b.RandomizationFactor = 0.1

	return backoff.Retry(func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if isBusyError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

// isBusyError matches modernc.org/sqlite contention errors by message.
func isBusyError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
