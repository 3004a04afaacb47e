// Package table implements the two base relation kinds: append-only tables (inserts
// only, full history retained in arrival order) and versioned tables (primary-key
// keyed current state). Both stage mutations first and expose them only once the
// owning epoch commits, so readers never observe a torn batch.
package table

import (
	"fmt"
	"sync"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/types"
)

// AppendOnly is an insert-only relation. Rows have no identity beyond their values
// and arrival order; nothing is ever rewritten or removed.
type AppendOnly struct {
	name   string
	schema types.Schema

	mu     sync.RWMutex
	rows   []types.Row // committed history, arrival order
	staged []types.Row // rows staged for the in-flight epoch
}

// NewAppendOnly creates an empty append-only table.
func NewAppendOnly(name string, schema types.Schema) *AppendOnly {
	return &AppendOnly{name: name, schema: schema}
}

// Name returns the table name.
func (t *AppendOnly) Name() string { return t.name }

// Schema returns the declared schema.
func (t *AppendOnly) Schema() types.Schema { return t.schema }

// StageAppend validates the row against the schema and stages it for the next epoch
// commit. It returns the insert change record for the epoch batch.
func (t *AppendOnly) StageAppend(row types.Row) (change.Record, error) {
	if err := t.schema.Validate(row); err != nil {
		return change.Record{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	rec := change.NewInsert(t.name, row)
	t.staged = append(t.staged, rec.Row)
	return rec, nil
}

// StageDelete always fails: append-only tables have no delete operation.
func (t *AppendOnly) StageDelete() error {
	return fmt.Errorf("%w: DELETE on append-only table %q", types.ErrUnsupportedOperation, t.name)
}

// StageUpdate always fails: append-only tables have no update operation.
func (t *AppendOnly) StageUpdate() error {
	return fmt.Errorf("%w: UPDATE on append-only table %q", types.ErrUnsupportedOperation, t.name)
}

// StageRecord stages an already-validated change record during change log replay.
func (t *AppendOnly) StageRecord(rec change.Record) error {
	if rec.Op != change.OpInsert {
		return fmt.Errorf("%w: %s on append-only table %q", types.ErrUnsupportedOperation, rec.Op, t.name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staged = append(t.staged, rec.Row)
	return nil
}

// Commit makes all staged rows part of the committed history, in staging order.
func (t *AppendOnly) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, t.staged...)
	t.staged = nil
}

// Abort discards staged rows.
func (t *AppendOnly) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staged = nil
}

// Len returns the committed row count.
func (t *AppendOnly) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Scan returns a restartable iterator over the committed history in arrival order.
// The scan is bounded by the history length at creation time, so it is finite even
// while later epochs append.
func (t *AppendOnly) Scan() *Scanner {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Scanner{table: t, limit: len(t.rows), next: 0}
}

// Scanner iterates an append-only table's history in arrival order.
type Scanner struct {
	table *AppendOnly
	limit int
	next  int
	row   types.Row
}

// Next advances the scanner. It returns false once the history captured at Scan time
// is exhausted.
func (s *Scanner) Next() bool {
	if s.next >= s.limit {
		return false
	}
	s.table.mu.RLock()
	s.row = s.table.rows[s.next]
	s.table.mu.RUnlock()
	s.next++
	return true
}

// Row returns the current row. Valid after Next reported true.
func (s *Scanner) Row() types.Row { return s.row }

// Restart rewinds the scanner to the beginning of the captured history.
func (s *Scanner) Restart() { s.next = 0 }
