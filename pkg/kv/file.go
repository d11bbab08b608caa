package kv

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// maxReopen bounds how often a writer reopens a path whose file was replaced
// between open and lock.
const maxReopen = 3

// emptyGrace is how long a zero-length record file is left alone. A writer
// creates the file before it can lock it, so a young empty file is most
// likely about to be filled.
const emptyGrace = time.Minute

// verdict is what a visit decides to do with a record while holding its lock.
type verdict int

const (
	keep verdict = iota
	drop
	rewrite
)

// FileStore keeps one JSON file per key under a directory. Every process
// that opens the same directory sees the same entries. Reads take a shared
// flock, writes an exclusive one, and a file is only ever unlinked on the
// strength of a read made under its lock.
type FileStore struct {
	dir string
	cfg Config

	sweepMu sync.Mutex
	release func()
}

// NewFileStore creates the storage directory if needed and registers the
// store with the directory's background sweeper.
func NewFileStore(cfg Config) (*FileStore, error) {
	cfg = cfg.withDefaults()

	dir := cfg.Dir
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("kv: create storage directory %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("kv: resolve storage directory %s: %w", dir, err)
	}

	s := &FileStore{dir: abs, cfg: cfg}
	interval := cfg.diskSweepInterval()
	s.release = fileSweepers.acquire(abs, interval, s.Sweep, cfg.Logger)

	cfg.Logger.Info("file storage initialized",
		"dir", abs,
		"timeout", cfg.DefaultTTL,
		"sweep_interval", interval,
		"sliding_ttl", cfg.SlidingTTL,
		"lock", fileLocker.String(),
	)
	return s, nil
}

// Dir returns the absolute storage directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file that holds key.
func (s *FileStore) Path(key string) string { return KeyPath(s.dir, key) }

// SetWithTTL replaces the file for key with a fresh record. value must be
// valid UTF-8.
func (s *FileStore) SetWithTTL(key string, ttl time.Duration, value string) error {
	if !utf8.ValidString(value) {
		return fmt.Errorf("%w: value for key %q is not valid UTF-8", ErrInvalidValue, key)
	}
	env := newEnvelope(value, s.cfg.Now(), ttl)
	if err := s.write(s.Path(key), env); err != nil {
		return err
	}
	s.cfg.Logger.Debug("stored key to file", "key", key, "ttl", ttl)
	return nil
}

// Get returns the value for key. Missing, expired, corrupt and unreadable
// records are all reported as absent; expired and corrupt files are removed.
func (s *FileStore) Get(key string) (string, bool) {
	path := s.Path(key)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		s.cfg.Recorder.Miss(BackendFile)
		return "", false
	}

	now := s.cfg.Now()
	var corrupt, expired, empty bool
	rec, v, err := s.visit(path, s.cfg.SlidingTTL, func(r *record) verdict {
		switch {
		case r.empty:
			empty = true
			return keep
		case r.err != nil:
			corrupt = true
			return drop
		case !r.env.liveAt(now):
			expired = true
			return drop
		case s.cfg.SlidingTTL:
			r.env.extend(now, s.cfg.DefaultTTL)
			return rewrite
		}
		return keep
	})
	env := rec.env

	switch {
	case empty:
		s.cfg.Logger.Debug("record file is empty, treating as absent", "key", key)
	case corrupt:
		s.cfg.Recorder.Corrupted(BackendFile)
		s.cfg.Logger.Warn("removed corrupt record", "key", key, "path", path)
	case expired:
		s.cfg.Recorder.Expired(BackendFile, 1)
		s.cfg.Logger.Debug("key expired and file removed", "key", key)
	case v == rewrite && err != nil:
		// The value was read intact; only the extension was lost.
		s.cfg.Logger.Warn("failed to extend ttl", "key", key, "error", err)
		err = nil
	case err != nil && errors.Is(err, fs.ErrNotExist):
	case err != nil:
		s.cfg.Logger.Warn("failed to read key", "key", key, "error", err)
	}
	if empty || corrupt || expired || err != nil {
		s.cfg.Recorder.Miss(BackendFile)
		return "", false
	}

	if v == rewrite {
		s.cfg.Logger.Debug("retrieved key from file and extended ttl",
			"key", key,
			"expires_at", fromEpochSeconds(env.ExpiresAt),
		)
	} else {
		s.cfg.Logger.Debug("retrieved key from file", "key", key)
	}
	s.cfg.Recorder.Hit(BackendFile)
	return env.Value, true
}

// Delete removes the file for key without locking it.
func (s *FileStore) Delete(key string) error {
	if err := removeFile(s.Path(key)); err != nil {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}

// Sweep removes every expired or corrupt record in the directory. Sweeps in
// one process are serialized; sweeps from other processes may overlap
// safely because removing an already removed file is a no-op.
func (s *FileStore) Sweep() (int, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("kv: list %s: %w", s.dir, err)
	}

	now := s.cfg.Now()
	var expired, corrupt int
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileSuffix {
			continue
		}
		path := filepath.Join(s.dir, e.Name())

		var bad bool
		_, v, err := s.visit(path, false, func(r *record) verdict {
			switch {
			case r.empty:
				if now.Sub(r.modTime) < emptyGrace {
					return keep
				}
				bad = true
				return drop
			case r.err != nil:
				bad = true
				return drop
			case !r.env.liveAt(now):
				return drop
			}
			return keep
		})
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.cfg.Logger.Warn("sweep skipped unreadable file", "path", path, "error", err)
			}
			continue
		}
		if v != drop {
			continue
		}
		if bad {
			corrupt++
			s.cfg.Recorder.Corrupted(BackendFile)
		} else {
			expired++
		}
	}

	if expired > 0 {
		s.cfg.Recorder.Expired(BackendFile, expired)
	}
	if removed := expired + corrupt; removed > 0 {
		s.cfg.Logger.Debug("cleaned up expired thread files", "removed", removed, "corrupt", corrupt)
	}
	return expired + corrupt, nil
}

// Shutdown drops this store's claim on the directory sweeper. The sweeper
// stops at its next wake once no store in the process uses the directory.
func (s *FileStore) Shutdown() {
	s.release()
}

// write replaces the contents of path with env under an exclusive lock.
// The file is truncated only once the lock is held, so a reader holding a
// shared lock sees either the old record or the new one.
func (s *FileStore) write(path string, env envelope) error {
	b, err := env.encode()
	if err != nil {
		return err
	}

	for range maxReopen {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o600) //nolint:gosec // G304: path derived from sanitized key
		if err != nil {
			return fmt.Errorf("kv: open %s: %w", path, err)
		}
		if err := fileLocker.lock(f, true, s.cfg.LockTimeout); err != nil {
			_ = f.Close()
			return err
		}
		if !sameFile(path, f) {
			// Unlinked by a sweep between open and lock; the data would vanish.
			fileLocker.unlock(f)
			_ = f.Close()
			continue
		}

		err = replaceContents(f, b)
		fileLocker.unlock(f)
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("kv: close %s: %w", path, cerr)
		}
		return err
	}
	return fmt.Errorf("kv: write %s: file replaced concurrently %d times", path, maxReopen)
}

// record is what visit found at a path.
type record struct {
	env envelope
	// err is a decoding failure wrapping errCorrupt.
	err error
	// empty marks a zero-length file, probably created by a writer that has
	// not locked it yet.
	empty   bool
	modTime time.Time
}

// visit opens path, locks it (exclusively when it may be rewritten), decodes
// the record and lets judge decide its fate while the lock is held. The
// returned error covers I/O only; decoding failures reach judge in the
// record.
func (s *FileStore) visit(path string, exclusive bool, judge func(r *record) verdict) (record, verdict, error) {
	flag := os.O_RDONLY
	if exclusive {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0) //nolint:gosec // G304: path derived from sanitized key
	if err != nil {
		return record{}, keep, err
	}
	if err := fileLocker.lock(f, exclusive, s.cfg.LockTimeout); err != nil {
		_ = f.Close()
		return record{}, keep, err
	}

	b, err := io.ReadAll(f)
	if err != nil {
		fileLocker.unlock(f)
		_ = f.Close()
		return record{}, keep, fmt.Errorf("kv: read %s: %w", path, err)
	}

	var r record
	if len(b) == 0 {
		r.empty = true
		if info, err := f.Stat(); err == nil {
			r.modTime = info.ModTime()
		}
	} else {
		r.env, r.err = decodeEnvelope(b)
	}
	v := judge(&r)

	var opErr error
	switch {
	case v == drop && removeUnderLock:
		opErr = removeIfSame(path, f)
	case v == rewrite && exclusive:
		var nb []byte
		if nb, opErr = r.env.encode(); opErr == nil {
			opErr = replaceContents(f, nb)
		}
	}
	fileLocker.unlock(f)
	_ = f.Close()

	if v == drop && !removeUnderLock {
		opErr = removeFile(path)
	}
	return r, v, opErr
}

// replaceContents truncates f, writes b from offset zero and syncs.
func replaceContents(f *os.File, b []byte) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("kv: truncate %s: %w", f.Name(), err)
	}
	if _, err := f.WriteAt(b, 0); err != nil {
		return fmt.Errorf("kv: write %s: %w", f.Name(), err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("kv: sync %s: %w", f.Name(), err)
	}
	return nil
}

// sameFile reports whether path still names the file open as f.
func sameFile(path string, f *os.File) bool {
	onDisk, err := os.Stat(path)
	if err != nil {
		return false
	}
	open, err := f.Stat()
	if err != nil {
		return false
	}
	return os.SameFile(onDisk, open)
}

// removeIfSame unlinks path only if it still names the locked file f, so a
// record recreated by another writer in the meantime survives.
func removeIfSame(path string, f *os.File) error {
	if !sameFile(path, f) {
		return nil
	}
	return removeFile(path)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
