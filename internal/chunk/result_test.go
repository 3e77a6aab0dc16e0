package chunk

import (
	"fmt"
	"testing"
)

// TestRowSet_Dedup verifies duplicate identities fold to one entry while
// first-seen order is preserved.
func TestRowSet_Dedup(t *testing.T) {
	t.Parallel()

	s := NewRowSet()
	if !s.Add(fakeRow{"a"}) {
		t.Fatalf("first add of a reported duplicate")
	}
	if !s.Add(fakeRow{"b"}) {
		t.Fatalf("first add of b reported duplicate")
	}
	if s.Add(fakeRow{"a"}) {
		t.Fatalf("second add of a reported new")
	}
	if got, want := s.Len(), 2; got != want {
		t.Fatalf("Len = %d, want %d", got, want)
	}
	if got := string(s.Rows()[0].RowKey()); got != "a" {
		t.Fatalf("first row = %q, want a", got)
	}
}

// TestRowSet_Merge verifies merging preserves dedup across sets, as used by
// partitioned runs.
func TestRowSet_Merge(t *testing.T) {
	t.Parallel()

	a := NewRowSet()
	a.Add(fakeRow{"x"})
	a.Add(fakeRow{"y"})

	b := NewRowSet()
	b.Add(fakeRow{"y"})
	b.Add(fakeRow{"z"})

	a.Merge(b)
	a.Merge(nil) // no-op
	if got, want := a.Len(), 3; got != want {
		t.Fatalf("merged Len = %d, want %d", got, want)
	}
}

// TestRowSet_ManyKeys exercises the hash-bucketed path with enough keys to
// make accidental pass-by-luck unlikely.
func TestRowSet_ManyKeys(t *testing.T) {
	t.Parallel()

	s := NewRowSet()
	for i := 0; i < 1000; i++ {
		s.Add(fakeRow{fmt.Sprintf("row-%d", i%250)})
	}
	if got, want := s.Len(), 250; got != want {
		t.Fatalf("Len = %d, want %d", got, want)
	}
}
