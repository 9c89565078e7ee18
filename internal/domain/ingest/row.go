// Package ingest holds per-row outcomes of a document build run.
package ingest

import "strconv"

// RowStatus is the processing outcome of a single source row.
type RowStatus string

// Row status values.
const (
	StatusOK        RowStatus = "ok"
	StatusError     RowStatus = "error"
	StatusDuplicate RowStatus = "duplicate"
)

// Result is the outcome of processing one source row.
type Result struct {
	row    int
	id     string
	key    string
	status RowStatus
	err    error
}

// NewOK creates a successful row result.
func NewOK(row int, id, key string) Result {
	return Result{row: row, id: id, key: key, status: StatusOK}
}

// NewError creates a failed row result. Nothing was stored for this row.
func NewError(row int, id, key string, err error) Result {
	return Result{row: row, id: id, key: key, status: StatusError, err: err}
}

// NewDuplicate marks a row dropped by deduplication in favor of keptRow.
func NewDuplicate(row int, key string, keptRow int) Result {
	return Result{row: row, key: key, status: StatusDuplicate, err: &DuplicateError{KeptRow: keptRow}}
}

// Row returns the zero-based source row index.
func (r Result) Row() int { return r.row }

// ID returns the document identifier (empty for duplicates).
func (r Result) ID() string { return r.id }

// Key returns the dedup key value of the row.
func (r Result) Key() string { return r.key }

// Status returns the processing outcome.
func (r Result) Status() RowStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// DuplicateError records which row won deduplication.
type DuplicateError struct {
	KeptRow int
}

func (e *DuplicateError) Error() string {
	return "duplicate of row " + strconv.Itoa(e.KeptRow)
}

// Summary counts results by status.
type Summary struct {
	OK         int
	Failed     int
	Duplicates int
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.status {
		case StatusOK:
			s.OK++
		case StatusError:
			s.Failed++
		case StatusDuplicate:
			s.Duplicates++
		}
	}
	return s
}
