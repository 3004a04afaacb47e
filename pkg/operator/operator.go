// Package operator implements the engine's dataflow operators. Operators consume and
// produce Z-set deltas; the snapshot join additionally reads the snapshot index
// supplied through the evaluation context, scoped to a single view and epoch so no
// state is shared behind the operator's back.
package operator

import (
	"fmt"

	"github.com/rivulet-db/rivulet/pkg/index"
	"github.com/rivulet-db/rivulet/pkg/types"
	"github.com/rivulet-db/rivulet/pkg/zset"
)

// EvalContext carries the per-epoch evaluation state handed to operators: the view's
// snapshot index and the epoch whose committed state lookups must observe.
type EvalContext struct {
	Index *index.Snapshot
	Epoch types.Epoch
}

// Operator is a computation node turning input deltas into an output delta.
type Operator interface {
	// Process evaluates the operator on the given input deltas.
	Process(ctx EvalContext, inputs ...*zset.RowZSet) (*zset.RowZSet, error)
	// Name returns the operator name for logs and errors.
	Name() string
	// Arity returns the number of inputs expected.
	Arity() int
}

// BaseOp carries the name/arity bookkeeping shared by all operators.
type BaseOp struct {
	arity int
	name  string
}

// NewBaseOp creates the shared operator base.
func NewBaseOp(name string, arity int) BaseOp {
	return BaseOp{arity: arity, name: name}
}

// Name returns the operator name.
func (n *BaseOp) Name() string { return n.name }

// Arity returns the expected input count.
func (n *BaseOp) Arity() int { return n.arity }

func (n *BaseOp) validateInputs(inputs []*zset.RowZSet) error {
	if len(inputs) != n.arity {
		return fmt.Errorf("operator %s expects %d inputs, got %d", n.name, n.arity, len(inputs))
	}
	return nil
}

// Chain applies operators in sequence, each consuming the previous output.
type Chain struct {
	ops []Operator
}

// NewChain builds an operator chain. Every operator after the first must be unary.
func NewChain(ops ...Operator) (*Chain, error) {
	for i, op := range ops {
		if i > 0 && op.Arity() != 1 {
			return nil, fmt.Errorf("operator %s at chain position %d is not unary", op.Name(), i)
		}
	}
	return &Chain{ops: ops}, nil
}

// Process evaluates the chain on the given inputs.
func (c *Chain) Process(ctx EvalContext, inputs ...*zset.RowZSet) (*zset.RowZSet, error) {
	if len(c.ops) == 0 {
		return nil, fmt.Errorf("empty operator chain")
	}
	current, err := c.ops[0].Process(ctx, inputs...)
	if err != nil {
		return nil, fmt.Errorf("operator %s failed: %w", c.ops[0].Name(), err)
	}
	for _, op := range c.ops[1:] {
		current, err = op.Process(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("operator %s failed: %w", op.Name(), err)
		}
	}
	return current, nil
}
