// Package mssql implements the multi-key fetcher on Microsoft SQL Server
// using go-mssqldb. The statement uses @pN placeholders and is prepared once;
// SQL Server caches the plan by the (constant) statement text and arity.
//
// SQL Server has no row-value IN list, so composite keys expand to a
// disjunction of equality groups. Null placeholders never satisfy an
// equality, which keeps chunk padding inert.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"multiload/internal/chunk"
	"multiload/internal/storage"
)

// Fetcher is an MSSQL-backed storage.Fetcher.
type Fetcher struct {
	db       *sql.DB
	stmt     *sql.Stmt
	sql      string
	selected []string
	keyCols  int
	arity    int
}

var _ storage.Fetcher = (*Fetcher)(nil)

// NewFetcher validates the DSN, opens the database, and prepares the
// multi-key SELECT.
func NewFetcher(ctx context.Context, cfg storage.Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}

	selected := append(append([]string{}, cfg.KeyColumns...), cfg.Columns...)
	query := buildSelect(cfg, selected)
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: prepare: %w", err)
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

// buildSelect renders the fixed-arity SELECT. Single-column keys use an IN
// list of @pN placeholders; composite keys use OR-joined equality groups.
func buildSelect(cfg storage.Config, selected []string) string {
	var where string
	n := 1
	if len(cfg.KeyColumns) == 1 {
		ph := make([]string, cfg.ChunkSize)
		for i := range ph {
			ph[i] = fmt.Sprintf("@p%d", n)
			n++
		}
		where = fmt.Sprintf("%s IN (%s)", ident(cfg.KeyColumns[0]), strings.Join(ph, ", "))
	} else {
		groups := make([]string, cfg.ChunkSize)
		for i := range groups {
			eqs := make([]string, len(cfg.KeyColumns))
			for j, kc := range cfg.KeyColumns {
				eqs[j] = fmt.Sprintf("%s = @p%d", ident(kc), n)
				n++
			}
			groups[i] = "(" + strings.Join(eqs, " AND ") + ")"
		}
		where = "(" + strings.Join(groups, " OR ") + ")"
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(mapIdent(selected), ", "), fqn(cfg.Table), where)
}

// FetchChunk implements chunk.Fetcher.
func (f *Fetcher) FetchChunk(ctx context.Context, ec *chunk.ExecContext) ([]chunk.Row, error) {
	args := ec.Bindings.Values()
	if len(args) != f.arity {
		return nil, fmt.Errorf("mssql: %d bound values, statement wants %d", len(args), f.arity)
	}
	named := make([]any, len(args))
	for i, v := range args {
		named[i] = sql.Named(fmt.Sprintf("p%d", i+1), v)
	}
	rows, err := f.stmt.QueryContext(ctx, named...)
	if err != nil {
		return nil, fmt.Errorf("mssql: query: %w", err)
	}
	defer rows.Close()
	out, err := storage.ScanRows(rows, f.selected, f.keyCols)
	if err != nil {
		return nil, fmt.Errorf("mssql: %w", err)
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

func ident(id string) string { return "[" + strings.ReplaceAll(id, "]", "]]") + "]" }

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

// init registers the "mssql" backend with the storage factory.
func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Fetcher, error) {
		return NewFetcher(ctx, cfg)
	})
}
