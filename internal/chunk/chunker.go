// Package chunk implements the fixed-arity chunk scheduler at the core of
// multiload. Given a large, possibly sparse key array, it partitions the keys
// into chunks of a fixed size, binds each chunk into a parameter buffer of
// constant width (padding past the end of the array with nulls), and issues
// one bulk fetch per chunk that contains at least one real key; results are
// merged into a deduplicated aggregate.
//
// Keeping the bound parameter count constant across chunks and across runs is
// the point: the backend sees one statement shape and can reuse its prepared
// plan for every fetch. The padding nulls are inert server-side because a
// null never matches an IN-list element.
//
// The scheduler is strictly sequential within one run: chunk N+1 does not
// start before chunk N's fetch has completed and merged. ProcessPartitioned
// offers the sanctioned way to overlap I/O: independent runs over disjoint
// sub-ranges, merged afterward.
package chunk

import (
	"context"
	"fmt"
)

// KeyCollector observes every slot of every chunk, padding included, with the
// slot's position inside the chunk and inside the full key array. Callers use
// it for position bookkeeping; it has no influence on binding.
type KeyCollector func(key Key, relativePosition, absolutePosition int)

// StartListener is notified before any binding happens for a chunk, even one
// that turns out to be all padding.
type StartListener func(startIndex int)

// BoundaryListener is notified after a chunk's fetch has completed and been
// merged, with the exact count of real (non-padding) keys the chunk carried.
// It never fires for all-padding chunks.
type BoundaryListener func(startIndex, nonNullCount int)

// Hooks bundles the optional per-run notification callbacks. Nil fields are
// skipped.
type Hooks struct {
	CollectKey    KeyCollector
	ChunkStart    StartListener
	ChunkBoundary BoundaryListener
}

// ExecContext carries one chunk's execution state to the fetch collaborator:
// the filled parameter buffer plus whatever the factory attached (a session
// or connection handle, typically).
type ExecContext struct {
	Bindings *Bindings
	Session  any
}

// ExecContextFactory builds the per-chunk ExecContext. It exists so the
// scheduler stays decoupled from session/connection management; a nil
// factory yields a bare context around the bindings.
type ExecContextFactory func(b *Bindings) (*ExecContext, error)

// Fetcher is the bulk-fetch collaborator. Its statement shape is fixed for
// the lifetime of one Chunker: every FetchChunk call binds exactly
// chunkSize × columnsPerKey parameters.
type Fetcher interface {
	FetchChunk(ctx context.Context, ec *ExecContext) ([]Row, error)
}

// Chunker schedules fixed-arity bulk fetches over a key array. It holds no
// state across runs; a single Chunker may be reused for any number of
// sequential runs.
type Chunker struct {
	chunkSize     int
	columnsPerKey int
	binder        Binder
	fetcher       Fetcher
}

// New validates the chunk geometry and collaborators.
func New(chunkSize, columnsPerKey int, binder Binder, fetcher Fetcher) (*Chunker, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk: chunkSize must be >= 1, got %d", chunkSize)
	}
	if columnsPerKey < 1 {
		return nil, fmt.Errorf("chunk: columnsPerKey must be >= 1, got %d", columnsPerKey)
	}
	if binder == nil {
		return nil, fmt.Errorf("chunk: binder must not be nil")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("chunk: fetcher must not be nil")
	}
	return &Chunker{
		chunkSize:     chunkSize,
		columnsPerKey: columnsPerKey,
		binder:        binder,
		fetcher:       fetcher,
	}, nil
}

// ChunkSize reports the number of key slots per chunk.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Arity reports the fixed bound-parameter count per fetch.
func (c *Chunker) Arity() int { return c.chunkSize * c.columnsPerKey }

// ProcessChunks runs the scheduler loop over keys, merging fetched rows into
// out. nonNullCount is the caller-supplied budget: it must be an upper bound
// on the number of present keys in keys. The loop trusts it: it decrements
// by the nominal chunk size each iteration and never re-scans the array,
// so an understated budget silently leaves trailing keys unprocessed, while
// an overstatement costs at most one extra all-padding chunk, which is
// skipped without a fetch.
//
// The first error (a fetch failure, a binder contract violation, or a
// cancelled ctx) aborts the run. Rows already merged into out from earlier
// chunks are left intact.
func (c *Chunker) ProcessChunks(ctx context.Context, keys []Key, nonNullCount int, factory ExecContextFactory, hooks Hooks, out *RowSet) error {
	if out == nil {
		return fmt.Errorf("chunk: out RowSet must not be nil")
	}
	if nonNullCount < 0 {
		return fmt.Errorf("chunk: nonNullCount must be >= 0, got %d", nonNullCount)
	}

	numberOfKeysLeft := nonNullCount
	start := 0
	for numberOfKeysLeft > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.processChunk(ctx, keys, start, factory, hooks, out); err != nil {
			return err
		}
		start += c.chunkSize
		numberOfKeysLeft -= c.chunkSize
	}
	return nil
}

// processChunk binds and (if the chunk has any real key) fetches one chunk
// starting at startIndex.
func (c *Chunker) processChunk(ctx context.Context, keys []Key, startIndex int, factory ExecContextFactory, hooks Hooks, out *RowSet) error {
	if hooks.ChunkStart != nil {
		hooks.ChunkStart(startIndex)
	}

	bindings := NewBindings(c.Arity())

	nonNullCounter := 0
	bindCount := 0
	for i := 0; i < c.chunkSize; i++ {
		keyPosition := i + startIndex

		key := Absent
		if keyPosition < len(keys) {
			key = keys[keyPosition]
		}

		if hooks.CollectKey != nil {
			hooks.CollectKey(key, i, keyPosition)
		}

		if key.Present {
			nonNullCounter++
		}

		n, err := c.binder.Bind(bindings, key)
		if err != nil {
			return fmt.Errorf("chunk at %d, slot %d: %w", startIndex, i, err)
		}
		bindCount += n
	}

	if bindCount != c.Arity() {
		return fmt.Errorf("%w: chunk at %d bound %d slots, want %d",
			ErrBindWidth, startIndex, bindCount, c.Arity())
	}

	if nonNullCounter == 0 {
		// All padding: only possible on the final chunk when the real key
		// count is not a multiple of chunkSize. Issuing the fetch would be a
		// wasted round trip.
		return nil
	}

	ec, err := c.buildContext(bindings, factory)
	if err != nil {
		return fmt.Errorf("chunk at %d: build exec context: %w", startIndex, err)
	}

	rows, err := c.fetcher.FetchChunk(ctx, ec)
	if err != nil {
		return fmt.Errorf("chunk at %d: fetch: %w", startIndex, err)
	}
	for _, r := range rows {
		out.Add(r)
	}

	if hooks.ChunkBoundary != nil {
		hooks.ChunkBoundary(startIndex, nonNullCounter)
	}
	return nil
}

func (c *Chunker) buildContext(b *Bindings, factory ExecContextFactory) (*ExecContext, error) {
	if factory == nil {
		return &ExecContext{Bindings: b}, nil
	}
	ec, err := factory(b)
	if err != nil {
		return nil, err
	}
	if ec == nil {
		return nil, fmt.Errorf("chunk: exec context factory returned nil")
	}
	return ec, nil
}
