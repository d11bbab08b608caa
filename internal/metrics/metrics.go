// Package metrics counts store outcomes with Prometheus counters.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dotcommander/threadstore/pkg/kv"
)

// Compile-time interface check.
var _ kv.Recorder = (*Recorder)(nil)

// Recorder implements kv.Recorder on a private registry, so several
// recorders can coexist in one process (tests) without colliding on the
// default registerer.
type Recorder struct {
	registry *prometheus.Registry

	gets    *prometheus.CounterVec
	expired *prometheus.CounterVec
	corrupt *prometheus.CounterVec
}

// New registers the threadstore counters on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadstore",
			Name:      "gets_total",
			Help:      "Store reads by backend and result (hit or miss).",
		}, []string{"backend", "result"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadstore",
			Name:      "expired_total",
			Help:      "Entries removed because their TTL elapsed.",
		}, []string{"backend"}),
		corrupt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadstore",
			Name:      "corrupt_total",
			Help:      "Entries removed because their record could not be decoded.",
		}, []string{"backend"}),
	}
	r.registry.MustRegister(r.gets, r.expired, r.corrupt)
	return r
}

func (r *Recorder) Hit(b kv.Backend)  { r.gets.WithLabelValues(string(b), "hit").Inc() }
func (r *Recorder) Miss(b kv.Backend) { r.gets.WithLabelValues(string(b), "miss").Inc() }
func (r *Recorder) Expired(b kv.Backend, n int) {
	r.expired.WithLabelValues(string(b)).Add(float64(n))
}
func (r *Recorder) Corrupted(b kv.Backend) { r.corrupt.WithLabelValues(string(b)).Inc() }

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes every counter in the text exposition format, the
// layout node_exporter's textfile collector reads. The file is replaced
// atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("metrics: create directory for %s: %w", path, err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
