package chunk

import (
	"bytes"

	"github.com/zeebo/xxh3"
)

// Row is one result row as produced by the fetch collaborator. RowKey is the
// collaborator's notion of row identity and drives duplicate suppression:
// a single fetch may legitimately yield the same logical row more than once
// (join fan-out within a chunk), and the aggregate keeps exactly one copy.
type Row interface {
	RowKey() []byte
}

// RowSet is the aggregate result accumulator for one scheduling run. Rows are
// kept in first-seen order. Identity is the xxh3 hash of RowKey with a full
// byte comparison on hash collision, so dedup never depends on the hash alone.
//
// A RowSet is not safe for concurrent use; each run (or each partition of a
// partitioned run) owns its own and merges afterward.
type RowSet struct {
	rows []Row
	seen map[uint64][][]byte
}

// NewRowSet returns an empty accumulator.
func NewRowSet() *RowSet {
	return &RowSet{seen: make(map[uint64][][]byte)}
}

// Add merges one row, reporting whether it was new. Duplicates are dropped.
func (s *RowSet) Add(r Row) bool {
	key := r.RowKey()
	h := xxh3.Hash(key)
	for _, k := range s.seen[h] {
		if bytes.Equal(k, key) {
			return false
		}
	}
	s.seen[h] = append(s.seen[h], key)
	s.rows = append(s.rows, r)
	return true
}

// Merge folds other into s, preserving s's dedup semantics.
func (s *RowSet) Merge(other *RowSet) {
	if other == nil {
		return
	}
	for _, r := range other.rows {
		s.Add(r)
	}
}

// Len reports the number of distinct rows accumulated.
func (s *RowSet) Len() int { return len(s.rows) }

// Rows returns the distinct rows in first-seen order. The returned slice is
// owned by the set; callers must not modify it.
func (s *RowSet) Rows() []Row { return s.rows }
