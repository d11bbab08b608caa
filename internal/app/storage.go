package app

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dotcommander/threadstore/pkg/kv"
)

// storageMu guards the process-wide store and the recorder it is built with.
//
//nolint:gochecknoglobals // process-wide store cache; reset via ResetStorage
var (
	storageMu       sync.RWMutex
	storage         kv.Store
	storageRecorder kv.Recorder
)

// SetRecorder sets the metrics recorder used when Storage next builds a store.
func SetRecorder(r kv.Recorder) {
	storageMu.Lock()
	storageRecorder = r
	storageMu.Unlock()
}

// Storage returns the process-wide store, building it from StoreConfig on
// first use. Concurrent first calls build exactly one store.
func Storage(logger *slog.Logger) (kv.Store, error) {
	storageMu.RLock()
	s := storage
	storageMu.RUnlock()
	if s != nil {
		return s, nil
	}

	storageMu.Lock()
	defer storageMu.Unlock()
	if storage != nil {
		return storage, nil
	}

	cfg, err := StoreConfig(logger)
	if err != nil {
		return nil, err
	}
	cfg.Recorder = storageRecorder
	s, err = kv.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Backend, err)
	}
	storage = s
	return s, nil
}

// RegisterStorage installs s as the process-wide store, shutting down any
// previous one. Tests use it to inject a prepared backend.
func RegisterStorage(s kv.Store) {
	storageMu.Lock()
	prev := storage
	storage = s
	storageMu.Unlock()
	if prev != nil && prev != s {
		prev.Shutdown()
	}
}

// ResetStorage shuts down and forgets the process-wide store; the next
// Storage call builds a fresh one.
func ResetStorage() {
	RegisterStorage(nil)
}
