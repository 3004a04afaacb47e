// Package plan defines the logical plan the engine consumes for materialized views.
// The SQL parser and planner live outside the engine; they hand over a SnapshotJoin
// describing the one join shape this core supports:
//
//	SELECT ... FROM stream LEFT JOIN versioned
//	    FOR SYSTEM_TIME AS OF NOW() ON stream.key = versioned.key
package plan

import (
	"fmt"

	"github.com/rivulet-db/rivulet/pkg/types"
)

// Relation tags which side of the join a column reference points at.
type Relation int

const (
	RelationStream Relation = iota
	RelationVersioned
)

// ColumnRef names one output column of the view.
type ColumnRef struct {
	Relation Relation
	Column   string
}

// SnapshotJoin is the logical plan of a snapshot ("AS OF NOW") left-outer join view.
type SnapshotJoin struct {
	// Stream is the append-only input table.
	Stream string
	// Versioned is the versioned input table.
	Versioned string
	// StreamKey and VersionedKey name the equality predicate's columns.
	StreamKey    string
	VersionedKey string
	// Output lists the projected columns. Empty means every stream column followed
	// by every versioned column.
	Output []ColumnRef
}

// Check validates the plan against the input schemas at view creation time. Key
// column type incompatibility is a TypeError; the view is not created.
func (p SnapshotJoin) Check(stream, versioned types.Schema) error {
	st := stream.ColumnType(p.StreamKey)
	if st == types.TypeInvalid {
		return fmt.Errorf("%w: join column %q not in table %q", types.ErrNotFound, p.StreamKey, p.Stream)
	}
	vt := versioned.ColumnType(p.VersionedKey)
	if vt == types.TypeInvalid {
		return fmt.Errorf("%w: join column %q not in table %q", types.ErrNotFound, p.VersionedKey, p.Versioned)
	}
	if st != vt {
		return fmt.Errorf("%w: cannot join %s.%s (%s) with %s.%s (%s)",
			types.ErrTypeMismatch, p.Stream, p.StreamKey, st, p.Versioned, p.VersionedKey, vt)
	}
	for _, ref := range p.Output {
		schema, table := stream, p.Stream
		if ref.Relation == RelationVersioned {
			schema, table = versioned, p.Versioned
		}
		if schema.ColumnIndex(ref.Column) < 0 {
			return fmt.Errorf("%w: output column %q not in table %q", types.ErrNotFound, ref.Column, table)
		}
	}
	return nil
}

// OutputSchema computes the view's schema under the plan's projection. Versioned-side
// columns keep their declared types even though unmatched rows extend them with NULL.
func (p SnapshotJoin) OutputSchema(stream, versioned types.Schema) types.Schema {
	if len(p.Output) == 0 {
		return stream.Concat(versioned)
	}
	cols := make([]types.Column, 0, len(p.Output))
	for _, ref := range p.Output {
		schema := stream
		if ref.Relation == RelationVersioned {
			schema = versioned
		}
		cols = append(cols, schema.Columns[schema.ColumnIndex(ref.Column)])
	}
	return types.NewSchema(cols...)
}

// OutputIndices resolves the projection to positions in the concatenated
// stream-then-versioned row. Nil means no projection (identity).
func (p SnapshotJoin) OutputIndices(stream, versioned types.Schema) []int {
	if len(p.Output) == 0 {
		return nil
	}
	out := make([]int, 0, len(p.Output))
	for _, ref := range p.Output {
		if ref.Relation == RelationStream {
			out = append(out, stream.ColumnIndex(ref.Column))
		} else {
			out = append(out, stream.Arity()+versioned.ColumnIndex(ref.Column))
		}
	}
	return out
}
