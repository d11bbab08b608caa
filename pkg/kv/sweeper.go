package kv

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// sweepFunc runs one eviction cycle.
type sweepFunc func() (int, error)

// sweeper runs a sweepFunc on a ticker until stopped. A cycle that is
// already running when stop is signalled finishes; the loop exits at its
// next wake.
type sweeper struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startSweeper(name string, interval time.Duration, fn sweepFunc, logger *slog.Logger) *sweeper {
	sw := &sweeper{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go sw.run(name, interval, fn, logger)
	return sw
}

func (sw *sweeper) run(name string, interval time.Duration, fn sweepFunc, logger *slog.Logger) {
	defer close(sw.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.stop:
			return
		case <-ticker.C:
		}

		// ticker and stop may both be ready; stop wins.
		select {
		case <-sw.stop:
			return
		default:
		}

		n, err := fn()
		if err != nil {
			logger.Error("sweep failed", "store", name, "error", err)
			continue
		}
		if n > 0 {
			logger.Debug("swept expired entries", "store", name, "removed", n)
		}
	}
}

// signal asks the loop to stop without waiting for it.
func (sw *sweeper) signal() {
	sw.stopOnce.Do(func() { close(sw.stop) })
}

// stopAndWait signals the loop and waits up to timeout for it to exit.
func (sw *sweeper) stopAndWait(timeout time.Duration) bool {
	sw.signal()
	select {
	case <-sw.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// sweeperRegistry keeps one running sweeper per storage directory, shared by
// every FileStore opened on that directory in this process.
type sweeperRegistry struct {
	mu      sync.Mutex
	entries map[string]*registeredSweeper
}

// registeredSweeper is the sweeper for one directory and the stores
// currently registered on it, oldest first.
type registeredSweeper struct {
	sw     *sweeper
	owners []*sweepOwner
}

type sweepOwner struct {
	fn sweepFunc
}

var fileSweepers = &sweeperRegistry{entries: make(map[string]*registeredSweeper)}

// acquire registers fn as a sweeper of dir, starting the directory's loop if
// none is running. Each cycle runs the newest live registration's fn, so the
// counts land on that store's Recorder and a released store is never swept
// through. The loop keeps the interval and logger of the registration that
// started it. The returned release drops the registration; the last release
// stops the loop. release is idempotent.
func (r *sweeperRegistry) acquire(dir string, interval time.Duration, fn sweepFunc, logger *slog.Logger) (release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[dir]
	if !ok {
		e = &registeredSweeper{}
		e.sw = startSweeper(dir, interval, func() (int, error) { return r.sweep(e) }, logger)
		r.entries[dir] = e
		logger.Debug("started file storage sweeper", "dir", dir, "interval", interval)
	}
	o := &sweepOwner{fn: fn}
	e.owners = append(e.owners, o)

	var once sync.Once
	return func() {
		once.Do(func() { r.release(dir, e, o) })
	}
}

// sweep runs one cycle on behalf of the newest live registration of e.
func (r *sweeperRegistry) sweep(e *registeredSweeper) (int, error) {
	r.mu.Lock()
	var fn sweepFunc
	if n := len(e.owners); n > 0 {
		fn = e.owners[n-1].fn
	}
	r.mu.Unlock()

	if fn == nil {
		return 0, nil
	}
	return fn()
}

func (r *sweeperRegistry) release(dir string, e *registeredSweeper, o *sweepOwner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.owners = slices.DeleteFunc(e.owners, func(x *sweepOwner) bool { return x == o })
	if len(e.owners) > 0 {
		return
	}
	if r.entries[dir] == e {
		delete(r.entries, dir)
	}
	e.sw.signal()
}

// refs returns the number of live registrations for dir.
func (r *sweeperRegistry) refs(dir string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[dir]; ok {
		return len(e.owners)
	}
	return 0
}
