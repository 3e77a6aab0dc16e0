package prompush

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"multiload/internal/metrics"
)

func gather(t *testing.T, b *Backend, name string) *dto.MetricFamily {
	t.Helper()
	families, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// TestNewBackend_Validation covers the constructor's argument checks.
func TestNewBackend_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("job", ""); err == nil {
		t.Fatalf("empty gateway URL accepted, want error")
	}
	b, err := NewBackend("", "http://localhost:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if b.jobName != "multiload" {
		t.Fatalf("default job name = %q, want multiload", b.jobName)
	}
}

// TestBackend_CounterMapping verifies known metric names land in the right
// collectors with the right label values, and unknown names are ignored.
func TestBackend_CounterMapping(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("job", "http://localhost:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter("load_chunks_total", 1, metrics.Labels{"status": "fetched"})
	b.IncCounter("load_chunks_total", 1, metrics.Labels{"status": "fetched"})
	b.IncCounter("load_rows_total", 5, metrics.Labels{"kind": "distinct"})
	b.IncCounter("no_such_metric", 1, nil)
	b.ObserveHistogram("load_chunk_duration_seconds", 0.25, metrics.Labels{"status": "fetched"})

	chunks := gather(t, b, "load_chunks_total")
	if chunks == nil {
		t.Fatalf("load_chunks_total not gathered")
	}
	if got := chunks.Metric[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("chunk counter = %v, want 2", got)
	}
	if got := chunks.Metric[0].GetLabel()[0].GetValue(); got != "fetched" {
		t.Fatalf("chunk counter label = %q, want fetched", got)
	}

	rows := gather(t, b, "load_rows_total")
	if rows == nil {
		t.Fatalf("load_rows_total not gathered")
	}
	if got := rows.Metric[0].GetCounter().GetValue(); got != 5 {
		t.Fatalf("row counter = %v, want 5", got)
	}

	durations := gather(t, b, "load_chunk_duration_seconds")
	if durations == nil {
		t.Fatalf("load_chunk_duration_seconds not gathered")
	}
	if got := durations.Metric[0].GetSummary().GetSampleCount(); got != 1 {
		t.Fatalf("duration sample count = %d, want 1", got)
	}
}
