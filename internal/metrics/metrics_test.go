package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/threadstore/pkg/kv"
)

func readTextfile(t *testing.T, r *Recorder) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out", "threadstore.prom")
	require.NoError(t, r.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRecorderCountsByBackend(t *testing.T) {
	r := New()
	r.Hit(kv.BackendFile)
	r.Hit(kv.BackendFile)
	r.Miss(kv.BackendMemory)
	r.Expired(kv.BackendSQLite, 3)
	r.Corrupted(kv.BackendFile)

	out := readTextfile(t, r)
	assert.Contains(t, out, `threadstore_gets_total{backend="file",result="hit"} 2`)
	assert.Contains(t, out, `threadstore_gets_total{backend="memory",result="miss"} 1`)
	assert.Contains(t, out, `threadstore_expired_total{backend="sqlite"} 3`)
	assert.Contains(t, out, `threadstore_corrupt_total{backend="file"} 1`)
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Hit(kv.BackendFile)

	assert.NotContains(t, readTextfile(t, b), `result="hit"`)
}

func TestRecorderObservesFileStore(t *testing.T) {
	r := New()
	s, err := kv.NewFileStore(kv.Config{Dir: t.TempDir(), Recorder: r})
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	require.NoError(t, s.SetWithTTL("k", time.Hour, "v"))
	_, ok := s.Get("k")
	require.True(t, ok)
	_, ok = s.Get("absent")
	require.False(t, ok)
	require.NoError(t, os.WriteFile(s.Path("bad"), []byte("{"), 0o600))
	_, ok = s.Get("bad")
	require.False(t, ok)

	out := readTextfile(t, r)
	assert.Contains(t, out, `threadstore_gets_total{backend="file",result="hit"} 1`)
	assert.Contains(t, out, `threadstore_gets_total{backend="file",result="miss"} 2`)
	assert.Contains(t, out, `threadstore_corrupt_total{backend="file"} 1`)
}

func TestRegistryGathersOnlyThreadstoreFamilies(t *testing.T) {
	r := New()
	r.Hit(kv.BackendMemory)
	r.Expired(kv.BackendFile, 2)

	families, err := r.Registry().Gather()
	require.NoError(t, err)

	samples := map[string]int{}
	for _, mf := range families {
		samples[mf.GetName()] = len(mf.GetMetric())
	}
	assert.Equal(t, map[string]int{
		"threadstore_gets_total":    1,
		"threadstore_expired_total": 1,
	}, samples, "no process or Go collectors on the private registry")
}
