// Package view implements materialized view state and the view lifecycle: creation
// with a full history rescan, steady-state incremental appends, drop, and
// drop-plus-recreate as one recompute operation.
package view

import (
	"sort"
	"sync"

	"github.com/rivulet-db/rivulet/pkg/types"
)

// State is the durable output of a view: a bag of output rows. It is an
// append-ordered, duplicate-preserving sequence — deliberately not a set, since
// stream rows carry no identity and duplicates are meaningful. Only the owning
// view's output path appends; queries read a snapshot of the latest committed epoch.
type State struct {
	schema types.Schema

	mu    sync.RWMutex
	rows  []types.Row
	epoch types.Epoch // last epoch whose outputs are included
}

// NewState creates an empty view state.
func NewState(schema types.Schema) *State {
	return &State{schema: schema}
}

// Schema returns the view's output schema.
func (s *State) Schema() types.Schema { return s.schema }

// Append adds output rows in emission order, stamped with the epoch they commit in.
// Emitted rows are final: nothing ever rewrites or removes them.
func (s *State) Append(epoch types.Epoch, rows []types.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.rows = append(s.rows, row.Copy())
	}
	if epoch > s.epoch {
		s.epoch = epoch
	}
}

// Rows returns a snapshot of the bag in emission order. The copy is isolated from
// later appends.
func (s *State) Rows() []types.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Row, len(s.rows))
	for i, row := range s.rows {
		out[i] = row.Copy()
	}
	return out
}

// SortedRows returns a snapshot sorted by the rows' natural order, for callers that
// request an explicit sort. The underlying bag keeps emission order.
func (s *State) SortedRows() []types.Row {
	out := s.Rows()
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Len returns the bag size.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Epoch returns the last epoch included in the state.
func (s *State) Epoch() types.Epoch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}
