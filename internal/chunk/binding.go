package chunk

import (
	"errors"
	"fmt"
)

// ErrBindWidth reports a disagreement between a binder and the chunker's
// configured columns-per-key: the number of parameter slots actually bound
// for a chunk did not match the statement's fixed arity. This is a
// programming-contract violation, not a runtime condition; the run is
// aborted and nothing is retried.
var ErrBindWidth = errors.New("chunk: bound slot count does not match statement arity")

// Key is one entry of a key array. Present distinguishes a real key from a
// padding/absent slot, so an application key whose value is legitimately nil
// is still representable. The zero Key is the absent sentinel.
type Key struct {
	Value   any
	Present bool
}

// K wraps a value as a present key.
func K(v any) Key { return Key{Value: v, Present: true} }

// Absent is the padding sentinel used beyond the end of a key array and for
// sparse slots inside it.
var Absent = Key{}

// Keys builds a dense key array where every value is present.
func Keys(vals ...any) []Key {
	out := make([]Key, len(vals))
	for i, v := range vals {
		out[i] = K(v)
	}
	return out
}

// CountPresent returns the number of present keys in the given range of ks,
// with hi clipped to len(ks). Callers use it to compute the non-null budget
// they pass to ProcessChunks.
func CountPresent(ks []Key, lo, hi int) int {
	if hi > len(ks) {
		hi = len(ks)
	}
	n := 0
	for i := lo; i < hi; i++ {
		if ks[i].Present {
			n++
		}
	}
	return n
}

// Bindings is the parameter buffer for one chunk. Its capacity is fixed at
// chunkSize × columnsPerKey and every slot is populated on every chunk
// (padding keys contribute nulls), so the statement's bound arity never
// varies and the backend can reuse its prepared plan.
//
// A Bindings is built fresh per chunk and discarded afterward.
type Bindings struct {
	slots []any
	bound int
}

// NewBindings allocates a buffer with the given fixed capacity.
func NewBindings(capacity int) *Bindings {
	return &Bindings{slots: make([]any, capacity)}
}

// Add appends parameter values at the running cursor. It fails if the buffer
// would overflow its fixed capacity.
func (b *Bindings) Add(vals ...any) error {
	if b.bound+len(vals) > len(b.slots) {
		return fmt.Errorf("%w: adding %d values at slot %d exceeds capacity %d",
			ErrBindWidth, len(vals), b.bound, len(b.slots))
	}
	for _, v := range vals {
		b.slots[b.bound] = v
		b.bound++
	}
	return nil
}

// Len reports how many slots have been bound so far.
func (b *Bindings) Len() int { return b.bound }

// Cap reports the fixed capacity.
func (b *Bindings) Cap() int { return len(b.slots) }

// Values returns the bound slots in order. Only valid once Len() == Cap().
func (b *Bindings) Values() []any { return b.slots[:b.bound] }

// Binder writes the parameter values for one key (or an absent placeholder)
// into a chunk's Bindings and reports how many slots it consumed.
//
// Implementations must be deterministic in width: binding an absent key
// consumes exactly as many slots as binding a present one. The chunker's
// fixed-arity invariant depends on it.
type Binder interface {
	Bind(b *Bindings, key Key) (int, error)
}

// ScalarBinder binds single-column keys: one slot per key, null for absent.
type ScalarBinder struct{}

func (ScalarBinder) Bind(b *Bindings, key Key) (int, error) {
	if !key.Present {
		if err := b.Add(nil); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err := b.Add(key.Value); err != nil {
		return 0, err
	}
	return 1, nil
}

// TupleBinder binds composite keys of a fixed column count. A present key's
// Value must be a []any of exactly Columns values; an absent key binds
// Columns nulls.
type TupleBinder struct {
	Columns int
}

func (t TupleBinder) Bind(b *Bindings, key Key) (int, error) {
	if t.Columns < 1 {
		return 0, fmt.Errorf("chunk: TupleBinder.Columns must be >= 1, got %d", t.Columns)
	}
	if !key.Present {
		for i := 0; i < t.Columns; i++ {
			if err := b.Add(nil); err != nil {
				return 0, err
			}
		}
		return t.Columns, nil
	}
	vals, ok := key.Value.([]any)
	if !ok {
		return 0, fmt.Errorf("chunk: composite key must be []any, got %T", key.Value)
	}
	if len(vals) != t.Columns {
		return 0, fmt.Errorf("chunk: composite key has %d values, want %d", len(vals), t.Columns)
	}
	if err := b.Add(vals...); err != nil {
		return 0, err
	}
	return t.Columns, nil
}
