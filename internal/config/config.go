// Package config defines the canonical, JSON-serializable configuration model
// for multiload runs. It is intentionally small, explicit, and dependency-
// free so that load specs can be read from disk (or other sources) and passed
// through the program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in load spec
//     files.
//  3. Minimalism: No third-party config libraries; decoding is performed by
//     the standard library.
//
// Example:
//
//	{
//	  "job": "vehicle_lookup",
//	  "fetch": {
//	    "kind": "postgres",
//	    "dsn": "postgres://localhost/fleet",
//	    "table": "public.vehicles",
//	    "key_columns": ["pcv"],
//	    "columns": ["name", "owner"]
//	  },
//	  "runtime": { "chunk_size": 64, "partitions": 1 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Load is the top-level object decoded from a load spec file.
type Load struct {
	// Job names the run; it is used for metrics labeling and log lines.
	Job string `json:"job"`

	// Fetch describes the backend and the multi-key statement's table shape.
	Fetch Fetch `json:"fetch"`

	// Runtime controls chunk geometry and partitioning.
	Runtime Runtime `json:"runtime"`
}

// Fetch configures the fetch backend.
type Fetch struct {
	// Kind selects a registered backend: "postgres", "sqlite", "mssql",
	// "mysql".
	Kind string `json:"kind"`

	// DSN is the backend connection string.
	DSN string `json:"dsn"`

	// Table is the fully qualified target table, e.g. "public.vehicles".
	Table string `json:"table"`

	// KeyColumns are the lookup key columns; their count times the chunk
	// size fixes the statement's bound-parameter arity.
	KeyColumns []string `json:"key_columns"`

	// Columns are the payload columns selected alongside the keys.
	Columns []string `json:"columns"`
}

// Runtime controls chunk geometry and partitioning.
type Runtime struct {
	// ChunkSize is the number of key slots per chunk. Zero picks the
	// default.
	ChunkSize int `json:"chunk_size"`

	// Partitions > 1 splits the key array into that many disjoint
	// sub-ranges loaded concurrently. Zero and one both mean sequential.
	Partitions int `json:"partitions"`
}

// DefaultChunkSize is used when runtime.chunk_size is omitted. Large enough
// to amortize round trips, small enough that padding waste on the final
// chunk stays negligible.
const DefaultChunkSize = 64

// EffectiveChunkSize resolves the configured or default chunk size.
func (r Runtime) EffectiveChunkSize() int {
	if r.ChunkSize > 0 {
		return r.ChunkSize
	}
	return DefaultChunkSize
}

// EffectivePartitions resolves the configured partition count, minimum one.
func (r Runtime) EffectivePartitions() int {
	if r.Partitions > 1 {
		return r.Partitions
	}
	return 1
}

// Decode reads a Load spec from r. Unknown fields are rejected so typos in
// spec files surface immediately instead of silently configuring nothing.
func Decode(r io.Reader) (Load, error) {
	var l Load
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&l); err != nil {
		return Load{}, fmt.Errorf("decode load spec: %w", err)
	}
	return l, nil
}

// ReadFile reads a Load spec from a JSON file on disk.
func ReadFile(path string) (Load, error) {
	f, err := os.Open(path)
	if err != nil {
		return Load{}, fmt.Errorf("open load spec: %w", err)
	}
	defer f.Close()
	l, err := Decode(f)
	if err != nil {
		return Load{}, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}
