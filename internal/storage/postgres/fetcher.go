// Package postgres implements the multi-key fetcher on Postgres using pgx v5.
// The SELECT is built once at construction with a fixed placeholder count;
// pgx's per-connection statement cache then reuses the server-side plan for
// every chunk.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"multiload/internal/chunk"
	"multiload/internal/storage"
)

// Fetcher is a Postgres-backed storage.Fetcher.
type Fetcher struct {
	pool     *pgxpool.Pool
	sql      string
	selected []string
	keyCols  int
	arity    int
}

var _ storage.Fetcher = (*Fetcher)(nil)

// NewFetcher opens a pgx pool and builds the fixed-arity multi-key SELECT.
func NewFetcher(ctx context.Context, cfg storage.Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	selected := append(append([]string{}, cfg.KeyColumns...), cfg.Columns...)
	return &Fetcher{
		pool:     pool,
		sql:      buildSelect(cfg, selected),
		selected: selected,
		keyCols:  len(cfg.KeyColumns),
		arity:    cfg.ChunkSize * len(cfg.KeyColumns),
	}, nil
}

// buildSelect renders the one statement this fetcher will ever run. A single
// key column yields `k IN ($1, …)`; composite keys use a row-value IN list.
// Null placeholders never match either form, so chunk padding is inert.
func buildSelect(cfg storage.Config, selected []string) string {
	var where string
	if len(cfg.KeyColumns) == 1 {
		ph := make([]string, cfg.ChunkSize)
		for i := range ph {
			ph[i] = fmt.Sprintf("$%d", i+1)
		}
		where = fmt.Sprintf("%s IN (%s)", pgIdent(cfg.KeyColumns[0]), strings.Join(ph, ", "))
	} else {
		tuples := make([]string, cfg.ChunkSize)
		n := 1
		for i := range tuples {
			ph := make([]string, len(cfg.KeyColumns))
			for j := range ph {
				ph[j] = fmt.Sprintf("$%d", n)
				n++
			}
			tuples[i] = "(" + strings.Join(ph, ", ") + ")"
		}
		where = fmt.Sprintf("(%s) IN (%s)",
			strings.Join(mapIdent(cfg.KeyColumns), ", "), strings.Join(tuples, ", "))
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(mapIdent(selected), ", "), pgFQN(cfg.Table), where)
}

// FetchChunk implements chunk.Fetcher.
func (f *Fetcher) FetchChunk(ctx context.Context, ec *chunk.ExecContext) ([]chunk.Row, error) {
	args := ec.Bindings.Values()
	if len(args) != f.arity {
		return nil, fmt.Errorf("postgres: %d bound values, statement wants %d", len(args), f.arity)
	}
	rows, err := f.pool.Query(ctx, f.sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var out []chunk.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		out = append(out, storage.NewRow(f.selected, values, f.keyCols))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate rows: %w", err)
	}
	return out, nil
}

// Arity implements storage.Fetcher.
func (f *Fetcher) Arity() int { return f.arity }

// Close implements storage.Fetcher.
func (f *Fetcher) Close() { f.pool.Close() }

// SQL exposes the generated statement text, for tests and diagnostics.
func (f *Fetcher) SQL() string { return f.sql }

func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.vehicles" to
// "public"."vehicles". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

// init registers the "postgres" backend with the storage factory.
func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Fetcher, error) {
		return NewFetcher(ctx, cfg)
	})
}
