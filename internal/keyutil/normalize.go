// Package keyutil canonicalizes key text read from external sources (key
// files, CLI input) before it enters a key array. Keys typed or exported by
// different systems often differ only in Unicode normalization form or in
// invisible formatting runes; canonicalizing both sides keeps lookups from
// silently missing rows that are present.
package keyutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// canonicalizer strips format runes (zero-width spaces, joiners, BOMs) and
// recomposes to NFC.
var canonicalizer = transform.Chain(
	runes.Remove(runes.In(unicode.Cf)),
	norm.NFC,
)

// Canonical returns the canonical form of one key string:
//
//  1. trim surrounding whitespace
//  2. drop Unicode format runes
//  3. recompose to NFC
func Canonical(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	out, _, err := transform.String(canonicalizer, s)
	if err != nil {
		// Malformed input passes through trimmed; the backend will simply
		// not match it.
		return s
	}
	return out
}
