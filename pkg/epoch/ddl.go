package epoch

import (
	"fmt"

	"github.com/rivulet-db/rivulet/pkg/plan"
	"github.com/rivulet-db/rivulet/pkg/table"
	"github.com/rivulet-db/rivulet/pkg/types"
	"github.com/rivulet-db/rivulet/pkg/view"
	"github.com/rivulet-db/rivulet/pkg/wal"
)

// DDL statements run through the scheduler so they serialize with epoch commits and
// land in the change log in epoch order. Each DDL statement first flushes any staged
// DML, then commits as its own epoch.

// CreateAppendOnly declares a new append-only table.
func (s *Scheduler) CreateAppendOnly(name string, schema types.Schema) (*table.AppendOnly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTableFree(name); err != nil {
		return nil, err
	}
	if err := s.flushLocked(); err != nil {
		return nil, err
	}

	sc := schema
	if err := s.logDDLLocked(wal.DDLEntry{Kind: wal.DDLCreateAppendOnly, Name: name, Schema: &sc}); err != nil {
		return nil, err
	}
	t := table.NewAppendOnly(name, schema)
	s.streams.Store(name, t)
	s.log.V(1).Info("append-only table created", "table", name, "epoch", s.committed)
	return t, nil
}

// CreateVersioned declares a new versioned table keyed by the named primary-key
// column.
func (s *Scheduler) CreateVersioned(name string, schema types.Schema, pkColumn string) (*table.Versioned, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTableFree(name); err != nil {
		return nil, err
	}
	t, err := table.NewVersioned(name, schema, pkColumn)
	if err != nil {
		return nil, err
	}
	if err := s.flushLocked(); err != nil {
		return nil, err
	}

	sc := schema
	if err := s.logDDLLocked(wal.DDLEntry{Kind: wal.DDLCreateVersioned, Name: name, Schema: &sc, PrimaryKey: pkColumn}); err != nil {
		return nil, err
	}
	s.versioned.Store(name, t)
	s.log.V(1).Info("versioned table created", "table", name, "epoch", s.committed)
	return t, nil
}

// CreateView creates a materialized view: a synchronous full rescan of the stream
// table's history against the versioned table's state as of the creation epoch. The
// view is queryable when CreateView returns.
func (s *Scheduler) CreateView(name string, p plan.SnapshotJoin) (*view.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, versioned, err := s.resolvePlanLocked(p)
	if err != nil {
		return nil, err
	}
	// Validate before anything reaches the change log: a TypeError must leave no
	// trace of the view.
	if err := p.Check(stream.Schema(), versioned.Schema()); err != nil {
		return nil, err
	}
	if versioned.Schema().ColumnIndex(p.VersionedKey) != versioned.PrimaryKeyColumn() {
		return nil, fmt.Errorf("%w: snapshot join requires the versioned side to join on its primary key, got column %q",
			types.ErrUnsupportedOperation, p.VersionedKey)
	}
	if _, err := s.views.Get(name); err == nil {
		return nil, fmt.Errorf("materialized view %q already exists", name)
	}
	if err := s.flushLocked(); err != nil {
		return nil, err
	}

	pp := p
	if err := s.logDDLLocked(wal.DDLEntry{Kind: wal.DDLCreateView, Name: name, Plan: &pp}); err != nil {
		return nil, err
	}
	return s.views.Create(name, p, stream, versioned, s.committed)
}

// DropView destroys a view's snapshot index and state. Base tables are unaffected.
func (s *Scheduler) DropView(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.views.Get(name); err != nil {
		return err
	}
	if err := s.flushLocked(); err != nil {
		return err
	}
	if err := s.logDDLLocked(wal.DDLEntry{Kind: wal.DDLDropView, Name: name}); err != nil {
		return err
	}
	return s.views.Drop(name)
}

// RecomputeView drops and recreates a view in one scheduler step: no epoch can land
// between the teardown and the rescan. The result reflects the versioned table's
// state at the recompute epoch applied to the full stream history, which may
// legitimately differ from the previous contents.
func (s *Scheduler) RecomputeView(name string) (*view.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.views.Get(name)
	if err != nil {
		return nil, err
	}
	p := old.Plan()
	stream, versioned, err := s.resolvePlanLocked(p)
	if err != nil {
		return nil, err
	}
	if err := s.flushLocked(); err != nil {
		return nil, err
	}

	pp := p
	if err := s.logDDLLocked(
		wal.DDLEntry{Kind: wal.DDLDropView, Name: name},
		wal.DDLEntry{Kind: wal.DDLCreateView, Name: name, Plan: &pp},
	); err != nil {
		return nil, err
	}
	if err := s.views.Drop(name); err != nil {
		return nil, err
	}
	return s.views.Create(name, p, stream, versioned, s.committed)
}

// GetAppendOnly returns the named append-only table.
func (s *Scheduler) GetAppendOnly(name string) (*table.AppendOnly, error) {
	if t, ok := s.streams.Load(name); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: append-only table %q", types.ErrNotFound, name)
}

// GetVersioned returns the named versioned table.
func (s *Scheduler) GetVersioned(name string) (*table.Versioned, error) {
	if t, ok := s.versioned.Load(name); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: versioned table %q", types.ErrNotFound, name)
}

// HasTable reports whether any table of either kind carries the name.
func (s *Scheduler) HasTable(name string) bool {
	if _, ok := s.streams.Load(name); ok {
		return true
	}
	_, ok := s.versioned.Load(name)
	return ok
}

// Views returns the scheduler's view manager.
func (s *Scheduler) Views() *view.Manager { return s.views }

// TableSizes returns the committed row count per table.
func (s *Scheduler) TableSizes() map[string]int {
	out := make(map[string]int)
	s.streams.Range(func(name string, t *table.AppendOnly) bool {
		out[name] = t.Len()
		return true
	})
	s.versioned.Range(func(name string, t *table.Versioned) bool {
		out[name] = t.Len()
		return true
	})
	return out
}

func (s *Scheduler) checkTableFree(name string) error {
	if s.HasTable(name) {
		return fmt.Errorf("table %q already exists", name)
	}
	return nil
}

func (s *Scheduler) resolvePlanLocked(p plan.SnapshotJoin) (*table.AppendOnly, *table.Versioned, error) {
	stream, ok := s.streams.Load(p.Stream)
	if !ok {
		return nil, nil, fmt.Errorf("%w: append-only table %q", types.ErrNotFound, p.Stream)
	}
	versioned, ok := s.versioned.Load(p.Versioned)
	if !ok {
		return nil, nil, fmt.Errorf("%w: versioned table %q", types.ErrNotFound, p.Versioned)
	}
	return stream, versioned, nil
}

// logDDLLocked writes a DDL-only epoch frame and advances the committed epoch.
func (s *Scheduler) logDDLLocked(ddl ...wal.DDLEntry) error {
	epoch := s.committed + 1
	if s.changeLog != nil {
		entries := make([]wal.Entry, 0, len(ddl))
		for i := range ddl {
			entries = append(entries, wal.Entry{Kind: wal.EntryDDL, DDL: &ddl[i]})
		}
		if err := s.changeLog.AppendFrame(epoch, entries); err != nil {
			return fmt.Errorf("failed to log DDL epoch %d: %w", epoch, err)
		}
	}
	s.committed = epoch
	return nil
}
