// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from multiload runs.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the storage abstraction pattern used elsewhere in the
//     project (storage.Fetcher + registry), allowing the rest of the
//     codebase to depend only on this interface while keeping concrete
//     metric systems isolated in subpackages.
//
// The primary use case is instrumentation of chunk processing (chunks
// fetched or skipped, rows fetched, duplicates dropped, per-chunk latency)
// without coupling the scheduler to a specific metrics system such as
// Prometheus or Datadog.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordChunk measures one processed chunk: status is "fetched" for a chunk
// that issued its bulk fetch, "skipped" for an all-padding chunk, "failure"
// when the fetch errored.
func RecordChunk(job, status string, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"status": status,
	}
	backend.IncCounter("load_chunks_total", 1, lbls)
	backend.ObserveHistogram("load_chunk_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given job and kind.
//
// Typical kinds mirror the loader report fields:
//   - "fetched"
//   - "distinct"
//   - "duplicates_dropped"
//   - "keys_present"
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("load_rows_total", float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}
