package chunk

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ProcessPartitioned splits keys into `partitions` contiguous disjoint
// sub-ranges, runs an independent sequential scheduler pass over each on its
// own goroutine, and merges the per-partition results into out once every
// pass has finished.
//
// Sub-range boundaries are rounded up to whole chunks so every partition
// issues fetches of the same fixed arity as a sequential run would.
// Hook positions are rebased to global indices before the hooks fire; hooks
// may be invoked concurrently from different partitions, so any state they
// touch must be synchronized by the caller.
//
// Each partition uses its sub-range length as the scheduling budget, which
// is always a safe upper bound on its present keys; callers do not supply a
// budget here. The first partition error cancels the
// remaining partitions and is returned; rows from partitions that completed
// before the failure are still merged into out.
func (c *Chunker) ProcessPartitioned(ctx context.Context, keys []Key, partitions int, factory ExecContextFactory, hooks Hooks, out *RowSet) error {
	if out == nil {
		return fmt.Errorf("chunk: out RowSet must not be nil")
	}
	if partitions < 1 {
		return fmt.Errorf("chunk: partitions must be >= 1, got %d", partitions)
	}
	if partitions == 1 {
		// len(keys) is a trivially safe budget: the loop visits every slot
		// and any trailing all-padding chunks are skipped without a fetch.
		return c.ProcessChunks(ctx, keys, len(keys), factory, hooks, out)
	}

	// Whole chunks per partition, so chunk offsets inside a partition line up
	// with the offsets a sequential run would use.
	totalChunks := (len(keys) + c.chunkSize - 1) / c.chunkSize
	if partitions > totalChunks {
		partitions = totalChunks
	}
	if partitions <= 1 {
		return c.ProcessChunks(ctx, keys, len(keys), factory, hooks, out)
	}
	chunksPer := (totalChunks + partitions - 1) / partitions

	g, gctx := errgroup.WithContext(ctx)
	results := make([]*RowSet, partitions)

	for p := 0; p < partitions; p++ {
		lo := p * chunksPer * c.chunkSize
		hi := lo + chunksPer*c.chunkSize
		if lo >= len(keys) {
			break
		}
		if hi > len(keys) {
			hi = len(keys)
		}

		part := keys[lo:hi]
		partOut := NewRowSet()
		results[p] = partOut
		base := lo

		g.Go(func() error {
			return c.ProcessChunks(gctx, part, len(part), factory, rebaseHooks(hooks, base), partOut)
		})
	}

	err := g.Wait()
	for _, r := range results {
		out.Merge(r)
	}
	return err
}

// rebaseHooks shifts a partition's local positions back into the full key
// array's index space.
func rebaseHooks(hooks Hooks, base int) Hooks {
	out := hooks
	if hooks.CollectKey != nil {
		out.CollectKey = func(key Key, rel, abs int) {
			hooks.CollectKey(key, rel, abs+base)
		}
	}
	if hooks.ChunkStart != nil {
		out.ChunkStart = func(start int) {
			hooks.ChunkStart(start + base)
		}
	}
	if hooks.ChunkBoundary != nil {
		out.ChunkBoundary = func(start, nonNull int) {
			hooks.ChunkBoundary(start+base, nonNull)
		}
	}
	return out
}
