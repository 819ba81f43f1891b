package quarry

import (
	"fmt"

	"github.com/syssam/quarry/dialect/sql"
)

// Result is the envelope returned by Engine.Execute. Rows are either
// materialized (cached executions, cache hits, exec statements) or
// streamed lazily from the underlying cursor.
//
// A streaming result is single-pass: rows must be fully consumed with
// Next or All, or the result must be closed explicitly to release the
// cursor. Materialized results need no closing, but Close is always
// safe to call.
type Result struct {
	rows    []map[string]any
	stream  *sql.Rows
	cols    []string
	scanned int
	count   int
	page    *PageInfo
	lastID  int64
	closed  bool
}

// newStreamResult wraps a live cursor in a lazy Result.
func newStreamResult(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("quarry: read result columns: %w", err)
	}
	return &Result{stream: rows, cols: cols, count: -1}, nil
}

// newRowsResult wraps materialized rows in a Result.
func newRowsResult(rows []map[string]any, page *PageInfo) *Result {
	return &Result{rows: rows, count: len(rows), page: page, closed: true}
}

// Streaming reports whether the result is backed by a live cursor.
func (r *Result) Streaming() bool { return r.stream != nil }

// Next pulls the next row. It returns nil, nil once the sequence is
// exhausted; the cursor is closed automatically at that point. For a
// materialized result it walks the buffered rows.
func (r *Result) Next() (map[string]any, error) {
	if r.stream == nil {
		if r.scanned >= len(r.rows) {
			return nil, nil
		}
		row := r.rows[r.scanned]
		r.scanned++
		return row, nil
	}
	if r.closed {
		return nil, nil
	}
	if !r.stream.Next() {
		err := r.stream.Err()
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("quarry: advance cursor: %w", err)
		}
		r.count = r.scanned
		return nil, nil
	}
	row, err := scanRow(r.stream, r.cols)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.scanned++
	return row, nil
}

// All drains the remaining rows into memory and closes the cursor.
// Once drained, the result behaves like a materialized one: repeated
// calls return the same buffered rows.
func (r *Result) All() ([]map[string]any, error) {
	if r.stream == nil {
		return r.rows, nil
	}
	var rows []map[string]any
	for {
		row, err := r.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	r.rows = rows
	r.count = len(rows)
	r.scanned = len(rows)
	r.stream = nil
	return rows, nil
}

// Close releases the underlying cursor. Safe to call more than once
// and on materialized results.
func (r *Result) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.stream != nil {
		return r.stream.Close()
	}
	return nil
}

// RowCount returns the number of rows: affected rows for exec
// statements, buffered rows for materialized results, and the number
// of rows consumed so far for a still-open stream (-1 before the first
// pull completes the count).
func (r *Result) RowCount() int { return r.count }

// Pagination returns the page metadata, or nil when no limit was set.
func (r *Result) Pagination() *PageInfo { return r.page }

// LastInsertID returns the identifier generated by the last INSERT,
// when the driver reports one.
func (r *Result) LastInsertID() int64 { return r.lastID }

// scanRow scans the current cursor position into a column-keyed map.
func scanRow(rows *sql.Rows, cols []string) (map[string]any, error) {
	values := make([]any, len(cols))
	for i := range values {
		values[i] = new(any)
	}
	if err := rows.Scan(values...); err != nil {
		return nil, fmt.Errorf("quarry: scan row: %w", err)
	}
	row := make(map[string]any, len(cols))
	for i, c := range cols {
		v := *(values[i].(*any))
		// Normalize driver byte slices so cached and live rows agree.
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		row[c] = v
	}
	return row, nil
}
