package view

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/plan"
	"github.com/rivulet-db/rivulet/pkg/table"
	"github.com/rivulet-db/rivulet/pkg/types"
)

// Manager owns the view registry and the lifecycle operations. Creation is
// synchronous: the view only becomes visible in the registry — and therefore
// queryable — once the full history rescan has populated its state.
type Manager struct {
	views *xsync.Map[string, *View]
	log   logr.Logger
}

// NewManager creates an empty view manager.
func NewManager(log logr.Logger) *Manager {
	return &Manager{
		views: xsync.NewMap[string, *View](),
		log:   log.WithName("view-manager"),
	}
}

// Create builds a view for the given plan and populates it by scanning the stream
// table's entire existing history against the versioned table's state as of the
// given epoch. The caller (the scheduler) guarantees no epoch commits concurrently.
func (m *Manager) Create(name string, p plan.SnapshotJoin, stream *table.AppendOnly, versioned *table.Versioned, epoch types.Epoch) (*View, error) {
	if _, exists := m.views.Load(name); exists {
		return nil, fmt.Errorf("materialized view %q already exists", name)
	}

	v, err := New(name, p, stream.Schema(), versioned.Schema(), versioned.PrimaryKeyColumn())
	if err != nil {
		return nil, err
	}

	// Seed the fresh index with the versioned table's current rows, stamped at the
	// creation epoch.
	var seed []change.Record
	versioned.Range(func(row types.Row) bool {
		seed = append(seed, change.NewInsert(versioned.Name(), row))
		return true
	})
	v.StageIndex(seed)
	if err := v.Index().Commit(epoch); err != nil {
		return nil, fmt.Errorf("failed to seed snapshot index for view %q: %w", name, err)
	}

	// Full history rescan, joining every stream row as of the creation epoch.
	var rows []types.Row
	scanner := stream.Scan()
	for scanner.Next() {
		rows = append(rows, scanner.Row())
	}
	if err := v.ProcessStreamRows(epoch, rows); err != nil {
		return nil, fmt.Errorf("failed to backfill view %q: %w", name, err)
	}

	m.views.Store(name, v)
	m.log.V(1).Info("view created", "view", name, "instance", v.InstanceID(),
		"epoch", epoch, "backfilled-rows", len(rows))
	return v, nil
}

// Drop discards a view's index and state. Base tables are untouched.
func (m *Manager) Drop(name string) error {
	if _, exists := m.views.LoadAndDelete(name); !exists {
		return fmt.Errorf("%w: materialized view %q", types.ErrNotFound, name)
	}
	m.log.V(1).Info("view dropped", "view", name)
	return nil
}

// Get returns the named view.
func (m *Manager) Get(name string) (*View, error) {
	v, ok := m.views.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: materialized view %q", types.ErrNotFound, name)
	}
	return v, nil
}

// Range visits every registered view.
func (m *Manager) Range(fn func(v *View) bool) {
	m.views.Range(func(_ string, v *View) bool {
		return fn(v)
	})
}

// Len returns the number of registered views.
func (m *Manager) Len() int { return m.views.Size() }
