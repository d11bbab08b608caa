package kv

import "time"

// Store is the contract shared by every backend.
type Store interface {
	// SetWithTTL stores value under key until now+ttl, replacing any prior
	// entry for key. FileStore records are UTF-8 JSON, so it rejects a value
	// that is not valid UTF-8 with an error matching ErrInvalidValue rather
	// than storing a lossy copy; the other backends keep arbitrary bytes.
	SetWithTTL(key string, ttl time.Duration, value string) error

	// Get returns the value for key if it is present and unexpired. Expired
	// and unreadable entries are reported as absent.
	Get(key string) (string, bool)

	// Delete removes key unconditionally. Deleting a missing key is not an
	// error.
	Delete(key string) error

	// Sweep runs one eviction cycle and returns how many entries it removed.
	Sweep() (int, error)

	// Shutdown stops background eviction. It is safe to call more than once.
	Shutdown()
}

// Setex mirrors the Redis SETEX argument order.
func Setex(s Store, key string, ttl time.Duration, value string) error {
	return s.SetWithTTL(key, ttl, value)
}
