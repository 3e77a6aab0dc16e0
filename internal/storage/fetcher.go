// Package storage defines the fetch-collaborator contract consumed by the
// chunk scheduler, plus a kind-keyed factory registry so callers stay
// backend-agnostic. Concrete backends (postgres, sqlite, mssql, mysql)
// register themselves at init time; importing multiload/internal/storage/all
// makes every built-in backend available.
//
// A Fetcher owns exactly one multi-key SELECT whose bound-parameter count is
// fixed at construction (chunk size × key columns). That constant arity is
// what lets the backend reuse one prepared plan for every chunk of every run.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"multiload/internal/chunk"
)

// Fetcher executes the fixed-shape multi-key statement for one chunk.
type Fetcher interface {
	chunk.Fetcher

	// Arity reports the statement's fixed bound-parameter count.
	Arity() int

	// Close releases the prepared statement and the underlying connections.
	Close()
}

// Config holds backend-agnostic fetcher configuration.
type Config struct {
	Kind       string   // registered backend kind, e.g. "postgres"
	DSN        string   // driver connection string
	Table      string   // fully qualified table name, e.g. "public.vehicles"
	KeyColumns []string // lookup key columns, order matches bound key tuples
	Columns    []string // payload columns selected alongside the keys
	ChunkSize  int      // keys per chunk; fixes the statement arity
}

// Validate performs the checks every backend needs before opening anything.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Table) == "" {
		return fmt.Errorf("storage: table must not be empty")
	}
	if len(c.KeyColumns) == 0 {
		return fmt.Errorf("storage: at least one key column is required")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("storage: chunk size must be >= 1, got %d", c.ChunkSize)
	}
	return nil
}

// Factory constructs a Fetcher for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Fetcher, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the Factory for a backend kind. It is
// typically called from backend packages' init functions.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// Kinds returns the registered backend kinds, for diagnostics.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	return kinds
}

// New opens a Fetcher for cfg.Kind via the registered factory.
func New(ctx context.Context, cfg Config) (Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no fetcher registered for kind=%q", cfg.Kind)
	}
	return fn(ctx, cfg)
}
