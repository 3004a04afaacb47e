package engine

import (
	"github.com/rivulet-db/rivulet/pkg/types"
	"github.com/rivulet-db/rivulet/pkg/view"
)

// QueryOption adjusts a Select.
type QueryOption func(*queryOptions)

type queryOptions struct {
	sorted bool
}

// WithSort requests the rows sorted by their natural order. Without it, rows come
// back in emission order; callers must not rely on any particular order.
func WithSort() QueryOption {
	return func(o *queryOptions) { o.sorted = true }
}

// Select runs SELECT * FROM view. The result is a bag: duplicate rows are retained
// and meaningful. Reads are snapshot-isolated against the latest fully committed
// epoch; a partially applied epoch is never observable.
func (e *Engine) Select(viewName string, opts ...QueryOption) ([]types.Row, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	v, err := e.views.Get(viewName)
	if err != nil {
		return nil, err
	}
	if o.sorted {
		return v.State().SortedRows(), nil
	}
	return v.State().Rows(), nil
}

// ViewSchema returns the output schema of a view.
func (e *Engine) ViewSchema(viewName string) (types.Schema, error) {
	v, err := e.views.Get(viewName)
	if err != nil {
		return types.Schema{}, err
	}
	return v.State().Schema(), nil
}

// Stats is a point-in-time snapshot of engine state, for logs and tests.
type Stats struct {
	CommittedEpoch types.Epoch
	Views          map[string]int // view name -> bag size
	Tables         map[string]int // table name -> committed row count
}

// Stats collects current counters.
func (e *Engine) Stats() Stats {
	st := Stats{
		CommittedEpoch: e.scheduler.CommittedEpoch(),
		Views:          make(map[string]int),
		Tables:         e.scheduler.TableSizes(),
	}
	e.views.Range(func(v *view.View) bool {
		st.Views[v.Name()] = v.State().Len()
		return true
	})
	return st
}
