package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"multiload/internal/chunk"
	"multiload/internal/storage"
)

// seedDB creates a throwaway database with a vehicles table. pcv is a
// non-unique key column so fan-out style duplicate results are possible.
func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE vehicles (pcv INTEGER, name TEXT)`,
		`INSERT INTO vehicles (pcv, name) VALUES
			(1, 'one'), (2, 'two'), (3, 'three'), (5, 'five'),
			(3, 'three')`, // duplicate logical row for pcv=3
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return path
}

func testConfig(dsn string, chunkSize int) storage.Config {
	return storage.Config{
		Kind:       "sqlite",
		DSN:        dsn,
		Table:      "vehicles",
		KeyColumns: []string{"pcv"},
		Columns:    []string{"name"},
		ChunkSize:  chunkSize,
	}
}

// TestFetcher_EndToEnd drives the chunk scheduler against a real SQLite
// database: five key slots over chunk size 2 yield three fixed-arity
// fetches, the final chunk is padded past the array end, a missing key (4)
// returns nothing, and the duplicated pcv=3 row is folded by the aggregate.
func TestFetcher_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, err := NewFetcher(ctx, testConfig(seedDB(t), 2))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer f.Close()

	if got, want := f.Arity(), 2; got != want {
		t.Fatalf("Arity = %d, want %d", got, want)
	}

	c, err := chunk.New(2, 1, chunk.ScalarBinder{}, f)
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}

	keys := chunk.Keys(1, 2, 3, 4, 5)
	var starts, boundaries int
	hooks := chunk.Hooks{
		ChunkStart:    func(int) { starts++ },
		ChunkBoundary: func(int, int) { boundaries++ },
	}
	out := chunk.NewRowSet()
	if err := c.ProcessChunks(ctx, keys, 5, nil, hooks, out); err != nil {
		t.Fatalf("ProcessChunks: %v", err)
	}

	if starts != 3 || boundaries != 3 {
		t.Fatalf("starts=%d boundaries=%d, want 3 and 3", starts, boundaries)
	}
	// Keys 1, 2, 3, 5 exist; 4 does not; the pcv=3 duplicate folds.
	if got, want := out.Len(), 4; got != want {
		t.Fatalf("distinct rows %d, want %d", got, want)
	}

	names := map[string]bool{}
	for _, r := range out.Rows() {
		m := r.(storage.Row).Map()
		names[toString(m["name"])] = true
	}
	for _, want := range []string{"one", "two", "three", "five"} {
		if !names[want] {
			t.Fatalf("missing row %q in %v", want, names)
		}
	}
}

// TestFetcher_AllPaddingIssuesNoQuery verifies a sparse array whose only
// chunk is all padding never reaches the database.
func TestFetcher_AllPaddingIssuesNoQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, err := NewFetcher(ctx, testConfig(seedDB(t), 2))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer f.Close()

	c, err := chunk.New(2, 1, chunk.ScalarBinder{}, f)
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}
	out := chunk.NewRowSet()
	keys := []chunk.Key{chunk.Absent, chunk.Absent}
	if err := c.ProcessChunks(ctx, keys, 2, nil, chunk.Hooks{}, out); err != nil {
		t.Fatalf("ProcessChunks: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("rows %d, want 0", out.Len())
	}
}

// TestBuildSelect_Shapes checks the generated SQL for scalar and composite
// keys.
func TestBuildSelect_Shapes(t *testing.T) {
	t.Parallel()

	cfg := storage.Config{
		Table:      "main.vehicles",
		KeyColumns: []string{"pcv"},
		Columns:    []string{"name"},
		ChunkSize:  3,
	}
	got := buildSelect(cfg, []string{"pcv", "name"})
	want := `SELECT "pcv", "name" FROM "main"."vehicles" WHERE "pcv" IN (?, ?, ?)`
	if got != want {
		t.Fatalf("scalar SQL:\n got %s\nwant %s", got, want)
	}

	cfg.KeyColumns = []string{"a", "b"}
	cfg.ChunkSize = 2
	got = buildSelect(cfg, []string{"a", "b", "name"})
	want = `SELECT "a", "b", "name" FROM "main"."vehicles" WHERE ("a", "b") IN ((?, ?), (?, ?))`
	if got != want {
		t.Fatalf("composite SQL:\n got %s\nwant %s", got, want)
	}
}

// TestNewFetcher_BadConfig covers the constructor's fail-fast paths.
func TestNewFetcher_BadConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig("", 2)
	if _, err := NewFetcher(context.Background(), cfg); err == nil {
		t.Fatalf("empty DSN accepted, want error")
	}

	cfg = testConfig(seedDB(t), 2)
	cfg.Table = "no_such_table"
	if _, err := NewFetcher(context.Background(), cfg); err == nil {
		t.Fatalf("prepare against missing table succeeded, want error")
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return ""
	}
}
