// Package mysql implements the multi-key fetcher on MySQL/MariaDB via
// database/sql and go-sql-driver/mysql. The fixed-arity SELECT is prepared
// once at construction; MySQL reuses the server-side prepared statement for
// every chunk.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"multiload/internal/chunk"
	"multiload/internal/storage"
)

// Fetcher is a MySQL-backed storage.Fetcher.
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
// multi-key SELECT. DSN uses go-sql-driver syntax, e.g.
// "user:pass@tcp(host:3306)/db".
func NewFetcher(ctx context.Context, cfg storage.Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}

	selected := append(append([]string{}, cfg.KeyColumns...), cfg.Columns...)
	query := buildSelect(cfg, selected)
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: prepare: %w", err)
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

// buildSelect renders the fixed-arity SELECT with `?` placeholders. MySQL
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
		return nil, fmt.Errorf("mysql: %d bound values, statement wants %d", len(args), f.arity)
	}
	rows, err := f.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql: query: %w", err)
	}
	defer rows.Close()
	out, err := storage.ScanRows(rows, f.selected, f.keyCols)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
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

func ident(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

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

// init registers the "mysql" backend with the storage factory.
func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Fetcher, error) {
		return NewFetcher(ctx, cfg)
	})
}
