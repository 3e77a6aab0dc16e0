package postgres

import (
	"testing"

	"multiload/internal/storage"
)

// TestBuildSelect_ScalarKey verifies the single-key IN form with $n
// placeholders and quoted, schema-qualified identifiers.
func TestBuildSelect_ScalarKey(t *testing.T) {
	t.Parallel()

	cfg := storage.Config{
		Table:      "public.vehicles",
		KeyColumns: []string{"pcv"},
		Columns:    []string{"name", "owner"},
		ChunkSize:  3,
	}
	got := buildSelect(cfg, []string{"pcv", "name", "owner"})
	want := `SELECT "pcv", "name", "owner" FROM "public"."vehicles" WHERE "pcv" IN ($1, $2, $3)`
	if got != want {
		t.Fatalf("SQL:\n got %s\nwant %s", got, want)
	}
}

// TestBuildSelect_CompositeKey verifies the row-value IN form numbers its
// placeholders contiguously across tuples.
func TestBuildSelect_CompositeKey(t *testing.T) {
	t.Parallel()

	cfg := storage.Config{
		Table:      "public.t",
		KeyColumns: []string{"a", "b"},
		ChunkSize:  2,
	}
	got := buildSelect(cfg, []string{"a", "b"})
	want := `SELECT "a", "b" FROM "public"."t" WHERE ("a", "b") IN (($1, $2), ($3, $4))`
	if got != want {
		t.Fatalf("SQL:\n got %s\nwant %s", got, want)
	}
}

// TestIdentQuoting covers embedded-quote escaping.
func TestIdentQuoting(t *testing.T) {
	t.Parallel()

	if got, want := pgIdent(`we"ird`), `"we""ird"`; got != want {
		t.Fatalf("pgIdent = %s, want %s", got, want)
	}
	if got, want := pgFQN("public.vehicles"), `"public"."vehicles"`; got != want {
		t.Fatalf("pgFQN = %s, want %s", got, want)
	}
}
