//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package kv

// Open files cannot be removed on every platform in this set (Windows), so
// removal happens after the descriptor is closed.
const removeUnderLock = false

func platformLocker() locker { return noLocker{} }
