package view

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/index"
	"github.com/rivulet-db/rivulet/pkg/operator"
	"github.com/rivulet-db/rivulet/pkg/plan"
	"github.com/rivulet-db/rivulet/pkg/types"
	"github.com/rivulet-db/rivulet/pkg/zset"
)

// View binds one snapshot-join plan to its private snapshot index, operator chain,
// and output state. Each view owns its index outright — two views over the same
// versioned table never share index structure, so dropping one cannot disturb the
// other.
type View struct {
	name       string
	instanceID uuid.UUID
	joinPlan   plan.SnapshotJoin

	index *index.Snapshot
	chain *operator.Chain
	state *State
}

// New assembles a view from a checked plan and the input schemas.
func New(name string, p plan.SnapshotJoin, stream, versioned types.Schema, pkColumn int) (*View, error) {
	if err := p.Check(stream, versioned); err != nil {
		return nil, err
	}
	// The point lookup contract needs one live row per join key, which is only
	// guaranteed when the versioned side joins on its primary key.
	if versioned.ColumnIndex(p.VersionedKey) != pkColumn {
		return nil, fmt.Errorf("%w: snapshot join requires the versioned side to join on its primary key, got column %q",
			types.ErrUnsupportedOperation, p.VersionedKey)
	}

	join := operator.NewSnapshotJoin(stream.ColumnIndex(p.StreamKey), versioned.Arity())
	project := operator.NewProjection(p.OutputIndices(stream, versioned))
	chain, err := operator.NewChain(join, project)
	if err != nil {
		return nil, err
	}

	return &View{
		name:       name,
		instanceID: uuid.New(),
		joinPlan:   p,
		index:      index.NewSnapshot(p.Versioned, versioned.ColumnIndex(p.VersionedKey)),
		chain:      chain,
		state:      NewState(p.OutputSchema(stream, versioned)),
	}, nil
}

// Name returns the view name.
func (v *View) Name() string { return v.name }

// InstanceID identifies this incarnation of the view. Recreating a dropped view
// yields a new instance: its contents are an independent recomputation, not a
// restoration.
func (v *View) InstanceID() uuid.UUID { return v.instanceID }

// Plan returns the view's logical plan.
func (v *View) Plan() plan.SnapshotJoin { return v.joinPlan }

// Index returns the view's snapshot index. The epoch commit path is its only writer.
func (v *View) Index() *index.Snapshot { return v.index }

// State returns the view's output state.
func (v *View) State() *State { return v.state }

// StageIndex stages an epoch batch's versioned-table records into the view's index.
func (v *View) StageIndex(records []change.Record) {
	v.index.Stage(records)
}

// ProcessStreamRows joins stream rows against the snapshot index as of the given
// epoch and appends the outputs to the view state. Rows are processed one at a time
// in arrival order, so each occurrence produces exactly one output row and emission
// order follows processing order.
func (v *View) ProcessStreamRows(epoch types.Epoch, rows []types.Row) error {
	if len(rows) == 0 {
		return nil
	}

	ctx := operator.EvalContext{Index: v.index, Epoch: epoch}
	outputs := make([]types.Row, 0, len(rows))
	for _, row := range rows {
		delta := zset.New()
		if err := delta.AddRowMutate(row, 1); err != nil {
			return err
		}
		result, err := v.chain.Process(ctx, delta)
		if err != nil {
			return err
		}
		outputs = append(outputs, result.Collect()...)
	}
	v.state.Append(epoch, outputs)
	return nil
}
