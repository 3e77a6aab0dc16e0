// Package sqlite implements the multi-key fetcher on SQLite via database/sql.
// The fixed-arity SELECT is prepared once at construction and reused for
// every chunk, so SQLite keeps a single compiled statement for the whole run.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite driver; replace with your preferred driver if desired.
	_ "modernc.org/sqlite" // alternative: github.com/mattn/go-sqlite3

	"multiload/internal/chunk"
	"multiload/internal/storage"
)

// Fetcher is a SQLite-backed storage.Fetcher.
type Fetcher struct {
	db       *sql.DB
	stmt     *sql.Stmt
	sql      string
	selected []string
	keyCols  int
	arity    int
}

var _ storage.Fetcher = (*Fetcher)(nil)

// NewFetcher opens the database, verifies the connection, and prepares the
// multi-key SELECT.
//
// DSN is passed directly to database/sql; for example:
//
//	"file:lookup.db?cache=shared"
//	"lookup.db"
func NewFetcher(ctx context.Context, cfg storage.Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// Ping with a timeout to fail fast on invalid DSNs.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	selected := append(append([]string{}, cfg.KeyColumns...), cfg.Columns...)
	query := buildSelect(cfg, selected)
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: prepare: %w", err)
	}

	return &Fetcher{
		db:       db,
		stmt:     stmt,
		sql:      query,
		selected: selected,
		keyCols:  len(cfg.KeyColumns),
		arity:    cfg.ChunkSize * len(cfg.KeyColumns),
	}, nil
}

// buildSelect renders the fixed-arity SELECT with `?` placeholders. SQLite
// supports row-value IN lists for composite keys.
func buildSelect(cfg storage.Config, selected []string) string {
	var where string
	if len(cfg.KeyColumns) == 1 {
		ph := strings.TrimSuffix(strings.Repeat("?, ", cfg.ChunkSize), ", ")
		where = fmt.Sprintf("%s IN (%s)", ident(cfg.KeyColumns[0]), ph)
	} else {
		tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cfg.KeyColumns)), ", ") + ")"
		tuples := make([]string, cfg.ChunkSize)
		for i := range tuples {
			tuples[i] = tuple
		}
		where = fmt.Sprintf("(%s) IN (%s)",
			strings.Join(mapIdent(cfg.KeyColumns), ", "), strings.Join(tuples, ", "))
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(mapIdent(selected), ", "), fqn(cfg.Table), where)
}

// FetchChunk implements chunk.Fetcher.
func (f *Fetcher) FetchChunk(ctx context.Context, ec *chunk.ExecContext) ([]chunk.Row, error) {
	args := ec.Bindings.Values()
	if len(args) != f.arity {
		return nil, fmt.Errorf("sqlite: %d bound values, statement wants %d", len(args), f.arity)
	}
	rows, err := f.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()
	out, err := storage.ScanRows(rows, f.selected, f.keyCols)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return out, nil
}

// Arity implements storage.Fetcher.
func (f *Fetcher) Arity() int { return f.arity }

// Close implements storage.Fetcher.
func (f *Fetcher) Close() {
	_ = f.stmt.Close()
	_ = f.db.Close()
}

// SQL exposes the generated statement text, for tests and diagnostics.
func (f *Fetcher) SQL() string { return f.sql }

func ident(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func fqn(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = ident(p)
	}
	return strings.Join(parts, ".")
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = ident(c)
	}
	return out
}

// init registers the "sqlite" backend with the storage factory.
func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Fetcher, error) {
		return NewFetcher(ctx, cfg)
	})
}
