package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"

	"multiload/internal/chunk"
)

// Row is the concrete result row shared by all SQL backends. Its identity
// for deduplication is a deterministic encoding of the key-column
// values, so a row returned twice by one fetch (join fan-out) folds into a
// single aggregate entry.
type Row struct {
	key     []byte
	columns []string
	values  []any
}

var _ chunk.Row = Row{}

// NewRow builds a Row from the selected column names and values; the first
// keyColumnCount values are the key tuple.
func NewRow(columns []string, values []any, keyColumnCount int) Row {
	return Row{
		key:     encodeKey(values[:keyColumnCount]),
		columns: columns,
		values:  values,
	}
}

// RowKey implements chunk.Row.
func (r Row) RowKey() []byte { return r.key }

// Columns returns the selected column names, key columns first.
func (r Row) Columns() []string { return r.columns }

// Values returns the column values aligned with Columns.
func (r Row) Values() []any { return r.values }

// Map returns the row as a column-name-keyed map, for JSON output.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		if i < len(r.values) {
			m[c] = r.values[i]
		}
	}
	return m
}

// encodeKey produces a deterministic, unambiguous byte encoding of a key
// tuple: a null marker or a length-prefixed textual rendering per value.
// Length prefixes keep ("ab","c") distinct from ("a","bc").
func encodeKey(vals []any) []byte {
	var out []byte
	for _, v := range vals {
		if v == nil {
			out = append(out, 0xff)
			continue
		}
		var s string
		switch t := v.(type) {
		case []byte:
			s = string(t)
		default:
			s = fmt.Sprint(t)
		}
		out = append(out, 0x00)
		out = binary.AppendUvarint(out, uint64(len(s)))
		out = append(out, s...)
	}
	return out
}

// ScanRows drains a database/sql result set into chunk rows. The select list
// must be key columns first, then payload columns; columns names the full
// list in that order.
func ScanRows(rows *sql.Rows, columns []string, keyColumnCount int) ([]chunk.Row, error) {
	var out []chunk.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, NewRow(columns, values, keyColumnCount))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
