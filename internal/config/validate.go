// Package config provides configuration models and helpers for multiload.
//
// This file adds a lightweight linter/validator for Load values. It performs
// static checks over a decoded Load and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Load spec.
//
// Path is a dotted path into the config (e.g. "fetch.kind",
// "runtime.chunk_size"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// knownKinds are the backend kinds shipped with this module. Unknown kinds
// are warnings, not errors, so specs for out-of-tree backends still lint.
var knownKinds = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"mssql":    true,
	"mysql":    true,
}

// Validate performs static validation / linting of a Load spec.
//
// It does not mutate the spec. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
func Validate(l Load) []Issue {
	var issues []Issue

	if strings.TrimSpace(l.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateFetch(l.Fetch)...)
	issues = append(issues, validateRuntime(l.Runtime)...)

	return issues
}

// HasErrors reports whether any issue is of error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// validateFetch validates the Fetch section.
func validateFetch(f Fetch) []Issue {
	var issues []Issue

	kind := strings.TrimSpace(f.Kind)
	if kind == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "fetch.kind",
			Message:  "fetch.kind must not be empty",
		})
	} else if !knownKinds[kind] {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "fetch.kind",
			Message:  fmt.Sprintf("unknown fetch kind %q; built-in kinds are postgres, sqlite, mssql, mysql", kind),
		})
	}

	if strings.TrimSpace(f.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "fetch.dsn",
			Message:  "fetch.dsn must not be empty",
		})
	}
	if strings.TrimSpace(f.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "fetch.table",
			Message:  "fetch.table must not be empty",
		})
	}
	if len(f.KeyColumns) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "fetch.key_columns",
			Message:  "at least one key column is required",
		})
	}

	seen := map[string]bool{}
	for i, kc := range f.KeyColumns {
		if strings.TrimSpace(kc) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("fetch.key_columns[%d]", i),
				Message:  "key column name must not be empty",
			})
			continue
		}
		if seen[kc] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("fetch.key_columns[%d]", i),
				Message:  fmt.Sprintf("duplicate key column %q", kc),
			})
		}
		seen[kc] = true
	}
	for i, c := range f.Columns {
		if seen[c] {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("fetch.columns[%d]", i),
				Message:  fmt.Sprintf("column %q repeats a key column; it will be selected twice", c),
			})
		}
	}

	return issues
}

// validateRuntime validates the Runtime section.
func validateRuntime(r Runtime) []Issue {
	var issues []Issue

	if r.ChunkSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.chunk_size",
			Message:  fmt.Sprintf("chunk_size must be >= 0 (0 means default %d), got %d", DefaultChunkSize, r.ChunkSize),
		})
	}
	if r.Partitions < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.partitions",
			Message:  fmt.Sprintf("partitions must be >= 0 (0 means sequential), got %d", r.Partitions),
		})
	}

	return issues
}
