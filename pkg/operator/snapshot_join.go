package operator

import (
	"fmt"

	"github.com/rivulet-db/rivulet/pkg/zset"

	"github.com/rivulet-db/rivulet/pkg/types"
)

// SnapshotJoinOp is the "AS OF NOW" left-outer join. Each stream row insertion is
// joined against the versioned table's state at the epoch it is processed in: a point
// lookup on the snapshot index decides the match once, and the emitted output row is
// final. Later versioned-table mutations only affect stream rows not yet processed.
type SnapshotJoinOp struct {
	BaseOp
	streamKey      int // join key position in the stream schema
	versionedArity int // NULL-extension width when unmatched
}

// NewSnapshotJoin creates a snapshot left-outer join over stream deltas.
func NewSnapshotJoin(streamKey, versionedArity int) *SnapshotJoinOp {
	return &SnapshotJoinOp{
		BaseOp:         NewBaseOp("⟕_snapshot", 1),
		streamKey:      streamKey,
		versionedArity: versionedArity,
	}
}

// Process joins each stream row occurrence independently: multiplicity n produces n
// output rows (bag semantics, no deduplication). Retractions cannot appear on the
// stream side and are rejected.
func (op *SnapshotJoinOp) Process(ctx EvalContext, inputs ...*zset.RowZSet) (*zset.RowZSet, error) {
	if err := op.validateInputs(inputs); err != nil {
		return nil, err
	}
	if ctx.Index == nil {
		return nil, fmt.Errorf("operator %s: no snapshot index in evaluation context", op.Name())
	}

	result := zset.New()
	err := inputs[0].ForEach(func(row types.Row, count int) error {
		if count < 0 {
			return fmt.Errorf("%w: retraction reached snapshot join for row %s",
				types.ErrUnsupportedOperation, row)
		}

		match, found, err := ctx.Index.Lookup(row[op.streamKey], ctx.Epoch)
		if err != nil {
			return err
		}

		var out types.Row
		if found {
			out = row.Concat(match)
		} else {
			out = row.Concat(types.NullRow(op.versionedArity))
		}
		return result.AddRowMutate(out, count)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProjectionOp narrows rows to the view's SELECT column list.
type ProjectionOp struct {
	BaseOp
	indices []int
}

// NewProjection creates a projection keeping the columns at the given positions. A
// nil index list is the identity projection.
func NewProjection(indices []int) *ProjectionOp {
	return &ProjectionOp{
		BaseOp:  NewBaseOp("π", 1),
		indices: indices,
	}
}

// Process evaluates the projection, preserving multiplicities.
func (op *ProjectionOp) Process(_ EvalContext, inputs ...*zset.RowZSet) (*zset.RowZSet, error) {
	if err := op.validateInputs(inputs); err != nil {
		return nil, err
	}
	if op.indices == nil {
		return inputs[0].Copy(), nil
	}

	result := zset.New()
	err := inputs[0].ForEach(func(row types.Row, count int) error {
		projected := make(types.Row, len(op.indices))
		for i, idx := range op.indices {
			if idx < 0 || idx >= len(row) {
				return fmt.Errorf("operator %s: column index %d out of range for row %s", op.Name(), idx, row)
			}
			projected[i] = row[idx]
		}
		return result.AddRowMutate(projected, count)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
