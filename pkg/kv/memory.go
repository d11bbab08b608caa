package kv

import (
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a process-local Store. One mutex covers the map, every
// operation and the background sweep; expected load is low.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	cfg     Config
	sweeper *sweeper
}

// NewMemoryStore creates an in-memory store and starts its background sweep.
// Call Shutdown to stop it.
func NewMemoryStore(cfg Config) *MemoryStore {
	cfg = cfg.withDefaults()
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		cfg:     cfg,
	}
	interval := cfg.memorySweepInterval()
	s.sweeper = startSweeper("memory", interval, s.Sweep, cfg.Logger)

	cfg.Logger.Info("in-memory storage initialized",
		"timeout", cfg.DefaultTTL,
		"sweep_interval", interval,
		"sliding_ttl", cfg.SlidingTTL,
	)
	return s
}

// SetWithTTL stores value until now+ttl.
func (s *MemoryStore) SetWithTTL(key string, ttl time.Duration, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, expiresAt: s.cfg.Now().Add(ttl)}
	s.cfg.Logger.Debug("stored key", "key", key, "ttl", ttl)
	return nil
}

// Get returns the value for key if unexpired. An expired entry is removed.
// With sliding TTL a hit pushes the expiry to now+DefaultTTL.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.cfg.Recorder.Miss(BackendMemory)
		return "", false
	}

	now := s.cfg.Now()
	if !now.Before(e.expiresAt) {
		delete(s.entries, key)
		s.cfg.Recorder.Expired(BackendMemory, 1)
		s.cfg.Recorder.Miss(BackendMemory)
		s.cfg.Logger.Debug("key expired and removed", "key", key)
		return "", false
	}

	if s.cfg.SlidingTTL {
		e.expiresAt = now.Add(s.cfg.DefaultTTL)
		s.entries[key] = e
		s.cfg.Logger.Debug("retrieved key and extended ttl", "key", key, "extension", s.cfg.DefaultTTL)
	} else {
		s.cfg.Logger.Debug("retrieved key", "key", key)
	}
	s.cfg.Recorder.Hit(BackendMemory)
	return e.value, true
}

// Delete removes key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Sweep removes every expired entry.
func (s *MemoryStore) Sweep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.cfg.Recorder.Expired(BackendMemory, removed)
		s.cfg.Logger.Debug("cleaned up expired entries", "removed", removed)
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Shutdown stops the background sweep, waiting up to one second for it.
func (s *MemoryStore) Shutdown() {
	if !s.sweeper.stopAndWait(time.Second) {
		s.cfg.Logger.Warn("in-memory sweeper did not stop in time")
	}
}
