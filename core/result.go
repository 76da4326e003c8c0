package core

import (
	"time"

	"github.com/pkg/errors"
)

// DateRange is the value of DateRange and DateTimeRange properties.
type DateRange struct {
	From time.Time `json:"from" yaml:"from"`
	To   time.Time `json:"to" yaml:"to"`
}

// Result is the typed result set of a CMIS query. It is not modified
// after Query returns.
type Result struct {
	columns []string
	rows    [][]interface{}
	sql     string
}

// Columns returns the result column labels in SELECT order.
func (r *Result) Columns() []string {
	return r.columns
}

// RowCount returns the number of rows.
func (r *Result) RowCount() int {
	return len(r.rows)
}

// Row returns the values of a row, indexed from 0.
func (r *Result) Row(i int) []interface{} {
	return r.rows[i]
}

// Rows returns all rows.
func (r *Result) Rows() [][]interface{} {
	return r.rows
}

// Value returns a value by row index (0-based) and column position
// (1-based).
func (r *Result) Value(row, column int) (interface{}, error) {
	if row < 0 || row >= len(r.rows) {
		return nil, errors.Errorf("row %d out of range", row)
	}
	if column < 1 || column > len(r.columns) {
		return nil, errors.Errorf("column %d out of range", column)
	}
	return r.rows[row][column-1], nil
}

// ColumnIndex returns the 1-based position of a column label or 0.
func (r *Result) ColumnIndex(label string) int {
	for i, c := range r.columns {
		if c == label {
			return i + 1
		}
	}
	return 0
}

// SQL returns the executed statement.
func (r *Result) SQL() string {
	return r.sql
}

// SearchEntry is one instance found by a legacy search.
type SearchEntry struct {
	PK        PK    `json:"pk" yaml:"pk"`
	TypeID    int64 `json:"type_id" yaml:"type_id"`
	CreatedBy int64 `json:"created_by" yaml:"created_by"`
}

// SearchResult is the result of a legacy FxSQL search.
type SearchResult struct {
	entries   []SearchEntry
	truncated bool
	counts    map[int64]int
	sql       string
}

// Entries returns the found instances.
func (r *SearchResult) Entries() []SearchEntry {
	return r.entries
}

// Truncated is true when more instances matched than the search maximum.
func (r *SearchResult) Truncated() bool {
	return r.truncated
}

// TypeCounts returns the number of returned instances per type id.
func (r *SearchResult) TypeCounts() map[int64]int {
	m := make(map[int64]int, len(r.counts))
	for k, v := range r.counts {
		m[k] = v
	}
	return m
}

// SQL returns the executed statement.
func (r *SearchResult) SQL() string {
	return r.sql
}
