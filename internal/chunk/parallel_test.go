package chunk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// keyedFetcher returns one row per present bound key, so results are fully
// determined by which keys were fetched regardless of chunk order.
type keyedFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *keyedFetcher) FetchChunk(_ context.Context, ec *ExecContext) ([]Row, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	var rows []Row
	for _, v := range ec.Bindings.Values() {
		if v != nil {
			rows = append(rows, fakeRow{fmt.Sprint(v)})
		}
	}
	return rows, nil
}

// TestProcessPartitioned_MatchesSequential verifies a partitioned run fetches
// exactly the rows a sequential run does, for several geometries.
func TestProcessPartitioned_MatchesSequential(t *testing.T) {
	t.Parallel()

	for _, partitions := range []int{1, 2, 3, 7} {
		for _, n := range []int{0, 1, 5, 12, 13} {
			vals := make([]any, n)
			for i := range vals {
				vals[i] = fmt.Sprintf("key-%d", i)
			}
			keys := Keys(vals...)

			seq, err := New(3, 1, ScalarBinder{}, &keyedFetcher{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			want := NewRowSet()
			if err := seq.ProcessChunks(context.Background(), keys, n, nil, Hooks{}, want); err != nil {
				t.Fatalf("sequential run: %v", err)
			}

			par, err := New(3, 1, ScalarBinder{}, &keyedFetcher{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			got := NewRowSet()
			if err := par.ProcessPartitioned(context.Background(), keys, partitions, nil, Hooks{}, got); err != nil {
				t.Fatalf("partitioned run (p=%d, n=%d): %v", partitions, n, err)
			}

			if got.Len() != want.Len() {
				t.Fatalf("p=%d n=%d: partitioned %d rows, sequential %d", partitions, n, got.Len(), want.Len())
			}
			seen := map[string]bool{}
			for _, r := range want.Rows() {
				seen[string(r.RowKey())] = true
			}
			for _, r := range got.Rows() {
				if !seen[string(r.RowKey())] {
					t.Fatalf("p=%d n=%d: unexpected row %q", partitions, n, r.RowKey())
				}
			}
		}
	}
}

// TestProcessPartitioned_RebasesHookPositions verifies hooks observe global
// key-array positions, not partition-local ones.
func TestProcessPartitioned_RebasesHookPositions(t *testing.T) {
	t.Parallel()

	c, err := New(2, 1, ScalarBinder{}, &keyedFetcher{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	keys := Keys("a", "b", "c", "d", "e", "f")

	var mu sync.Mutex
	starts := map[int]bool{}
	collected := map[int]string{}
	hooks := Hooks{
		ChunkStart: func(start int) {
			mu.Lock()
			starts[start] = true
			mu.Unlock()
		},
		CollectKey: func(key Key, _, abs int) {
			mu.Lock()
			if key.Present {
				collected[abs] = fmt.Sprint(key.Value)
			}
			mu.Unlock()
		},
	}

	if err := c.ProcessPartitioned(context.Background(), keys, 3, nil, hooks, NewRowSet()); err != nil {
		t.Fatalf("ProcessPartitioned: %v", err)
	}

	for _, want := range []int{0, 2, 4} {
		if !starts[want] {
			t.Fatalf("missing start notification at global offset %d (got %v)", want, starts)
		}
	}
	for i, want := range []string{"a", "b", "c", "d", "e", "f"} {
		if collected[i] != want {
			t.Fatalf("collected[%d] = %q, want %q", i, collected[i], want)
		}
	}
}

// TestProcessPartitioned_ErrorCancels verifies a failing partition surfaces
// its error while already-finished partitions' rows stay merged.
func TestProcessPartitioned_ErrorCancels(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	f := &selectiveFail{err: boom, failKey: "key-4"}
	c, err := New(2, 1, ScalarBinder{}, f)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vals := make([]any, 8)
	for i := range vals {
		vals[i] = fmt.Sprintf("key-%d", i)
	}
	out := NewRowSet()
	err = c.ProcessPartitioned(context.Background(), Keys(vals...), 4, nil, Hooks{}, out)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped %v", err, boom)
	}
}

// selectiveFail fails any chunk whose bindings include failKey.
type selectiveFail struct {
	err     error
	failKey string
}

func (f *selectiveFail) FetchChunk(_ context.Context, ec *ExecContext) ([]Row, error) {
	var rows []Row
	for _, v := range ec.Bindings.Values() {
		if v == nil {
			continue
		}
		if fmt.Sprint(v) == f.failKey {
			return nil, f.err
		}
		rows = append(rows, fakeRow{fmt.Sprint(v)})
	}
	return rows, nil
}

// TestProcessPartitioned_Validation covers bad partition counts and nil out.
func TestProcessPartitioned_Validation(t *testing.T) {
	t.Parallel()

	c, err := New(2, 1, ScalarBinder{}, &keyedFetcher{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.ProcessPartitioned(context.Background(), Keys("a"), 0, nil, Hooks{}, NewRowSet()); err == nil {
		t.Fatalf("partitions=0 succeeded, want error")
	}
	if err := c.ProcessPartitioned(context.Background(), Keys("a"), 2, nil, Hooks{}, nil); err == nil {
		t.Fatalf("nil out succeeded, want error")
	}
}
