package table

import (
	"fmt"
	"sync"

	"github.com/zhangyunhao116/skipmap"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/types"
)

// committedStore is the live row set, ordered by canonical primary-key rendering.
type committedStore = skipmap.FuncMap[string, types.Row]

func newCommittedStore() *committedStore {
	return skipmap.NewFunc[string, types.Row](func(a, b string) bool { return a < b })
}

// stagedEntry is the pending effect on one primary key within the in-flight epoch.
type stagedEntry struct {
	row       types.Row
	tombstone bool
}

// Versioned is a primary-key keyed relation holding current state. An update is
// modeled as retract-then-insert on the same key within one epoch; at most one live
// row exists per key at any instant.
type Versioned struct {
	name     string
	schema   types.Schema
	pkColumn int

	mu        sync.RWMutex
	committed *committedStore
	staged    map[string]stagedEntry
}

// NewVersioned creates an empty versioned table keyed by the named primary-key
// column.
func NewVersioned(name string, schema types.Schema, pkColumn string) (*Versioned, error) {
	idx := schema.ColumnIndex(pkColumn)
	if idx < 0 {
		return nil, fmt.Errorf("%w: primary key column %q not in schema of table %q",
			types.ErrSchemaMismatch, pkColumn, name)
	}
	return &Versioned{
		name:      name,
		schema:    schema,
		pkColumn:  idx,
		committed: newCommittedStore(),
		staged:    make(map[string]stagedEntry),
	}, nil
}

// Name returns the table name.
func (t *Versioned) Name() string { return t.name }

// Schema returns the declared schema.
func (t *Versioned) Schema() types.Schema { return t.schema }

// PrimaryKeyColumn returns the index of the primary-key column.
func (t *Versioned) PrimaryKeyColumn() int { return t.pkColumn }

// PrimaryKey extracts the primary-key datum from a row of this table's schema.
func (t *Versioned) PrimaryKey(row types.Row) types.Datum { return row[t.pkColumn] }

// StageUpsert stages an insert, retracting any live row on the same key first. It
// returns the change record sequence the mutation produces: retract-then-insert when
// the key was live, a bare insert otherwise. NULL primary keys are rejected as a
// schema mismatch.
func (t *Versioned) StageUpsert(row types.Row) ([]change.Record, error) {
	if err := t.schema.Validate(row); err != nil {
		return nil, err
	}
	pk := t.PrimaryKey(row)
	if pk.IsNull() {
		return nil, fmt.Errorf("%w: NULL primary key in table %q", types.ErrSchemaMismatch, t.name)
	}
	key, err := types.DatumKey(pk)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var records []change.Record
	if old, live := t.effectiveLocked(key); live {
		records = append(records, change.NewDelete(t.name, old))
	}
	rec := change.NewInsert(t.name, row)
	records = append(records, rec)
	t.staged[key] = stagedEntry{row: rec.Row}
	return records, nil
}

// StageDelete stages the removal of the live row for the given key. Deleting a
// non-existent key is a zero-effect success: it returns no records and no error.
func (t *Versioned) StageDelete(pk types.Datum) ([]change.Record, error) {
	key, err := types.DatumKey(pk)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	old, live := t.effectiveLocked(key)
	if !live {
		return nil, nil
	}
	t.staged[key] = stagedEntry{tombstone: true}
	return []change.Record{change.NewDelete(t.name, old)}, nil
}

// StageDeleteAll stages the removal of every live row (mass DELETE with no
// predicate). Always succeeds; on an empty table it stages nothing.
func (t *Versioned) StageDeleteAll() ([]change.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var records []change.Record
	seen := make(map[string]bool)
	t.committed.Range(func(key string, row types.Row) bool {
		seen[key] = true
		if entry, ok := t.staged[key]; ok {
			if !entry.tombstone {
				records = append(records, change.NewDelete(t.name, entry.row))
				t.staged[key] = stagedEntry{tombstone: true}
			}
			return true
		}
		records = append(records, change.NewDelete(t.name, row))
		t.staged[key] = stagedEntry{tombstone: true}
		return true
	})
	for key, entry := range t.staged {
		if seen[key] || entry.tombstone {
			continue
		}
		records = append(records, change.NewDelete(t.name, entry.row))
		t.staged[key] = stagedEntry{tombstone: true}
	}
	return records, nil
}

// StageRecord stages the exact effect of a logged change record during change log
// replay. Unlike StageUpsert it performs no retraction expansion: the log already
// carries the expanded record sequence.
func (t *Versioned) StageRecord(rec change.Record) error {
	key, err := types.DatumKey(t.PrimaryKey(rec.Row))
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch rec.Op {
	case change.OpInsert:
		t.staged[key] = stagedEntry{row: rec.Row.Copy()}
	case change.OpDelete:
		t.staged[key] = stagedEntry{tombstone: true}
	}
	return nil
}

// Commit applies all staged effects to the committed store.
func (t *Versioned) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.staged {
		if entry.tombstone {
			t.committed.Delete(key)
		} else {
			t.committed.Store(key, entry.row)
		}
	}
	t.staged = make(map[string]stagedEntry)
}

// Abort discards staged effects.
func (t *Versioned) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staged = make(map[string]stagedEntry)
}

// Current returns the committed live row for the given primary key.
func (t *Versioned) Current(pk types.Datum) (types.Row, bool, error) {
	key, err := types.DatumKey(pk)
	if err != nil {
		return nil, false, err
	}
	row, ok := t.committed.Load(key)
	if !ok {
		return nil, false, nil
	}
	return row.Copy(), true, nil
}

// Len returns the committed live row count.
func (t *Versioned) Len() int { return t.committed.Len() }

// Range visits every committed live row in primary-key order. The callback must not
// retain the row.
func (t *Versioned) Range(fn func(row types.Row) bool) {
	t.committed.Range(func(_ string, row types.Row) bool {
		return fn(row)
	})
}

// effectiveLocked resolves a key against staged effects first, then committed state.
// Callers hold t.mu.
func (t *Versioned) effectiveLocked(key string) (types.Row, bool) {
	if entry, ok := t.staged[key]; ok {
		if entry.tombstone {
			return nil, false
		}
		return entry.row, true
	}
	if row, ok := t.committed.Load(key); ok {
		return row, true
	}
	return nil, false
}
