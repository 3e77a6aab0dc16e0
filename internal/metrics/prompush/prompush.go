// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the common load labels (job, status, kind) onto Prometheus
//     labels; job doubles as the Pushgateway grouping key.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead
//     of exposing an HTTP scrape endpoint, which suits short-lived load runs.
//
// The package intentionally contains all Prometheus-specific dependencies so
// that the rest of the project remains decoupled from Prometheus and can swap
// to alternative backends (e.g. Datadog, StatsD) without changes to the core
// scheduler.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"multiload/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	chunkCounter  *prometheus.CounterVec // "load_chunks_total"
	chunkDuration *prometheus.SummaryVec // "load_chunk_duration_seconds"
	rowCounter    *prometheus.CounterVec // "load_rows_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (usually the load spec's job).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "multiload"
	}

	reg := prometheus.NewRegistry()

	chunkCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "load_chunks_total",
			Help: "Total number of processed chunks, partitioned by status (fetched, skipped, failure).",
		},
		[]string{"status"},
	)
	chunkDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "load_chunk_duration_seconds",
			Help:       "Duration of chunk processing in seconds, partitioned by status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "load_rows_total",
			Help: "Row-level counts per kind (fetched, distinct, duplicates_dropped, keys_present).",
		},
		[]string{"kind"},
	)

	if err := reg.Register(chunkCounter); err != nil {
		return nil, fmt.Errorf("prompush: register chunk counter: %w", err)
	}
	if err := reg.Register(chunkDuration); err != nil {
		return nil, fmt.Errorf("prompush: register chunk summary: %w", err)
	}
	if err := reg.Register(rowCounter); err != nil {
		return nil, fmt.Errorf("prompush: register row counter: %w", err)
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		chunkCounter:  chunkCounter,
		chunkDuration: chunkDuration,
		rowCounter:    rowCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "load_chunks_total":
		if b.chunkCounter == nil {
			return
		}
		b.chunkCounter.WithLabelValues(labels["status"]).Add(delta)

	case "load_rows_total":
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "load_chunk_duration_seconds" || b.chunkDuration == nil {
		return
	}
	b.chunkDuration.WithLabelValues(labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
