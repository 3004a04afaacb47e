// Package engine is the embeddable facade over the view-maintenance core. It exposes
// the declarative statement surface - table and view DDL, inserts and deletes,
// queries - as API calls, backed by the epoch scheduler, the snapshot indexes, and
// the durable change log. The SQL parser and planner sit outside: they hand the
// engine plan values and rows, not query text.
package engine

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/rivulet-db/rivulet/internal/buildinfo"
	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/config"
	"github.com/rivulet-db/rivulet/pkg/epoch"
	"github.com/rivulet-db/rivulet/pkg/plan"
	"github.com/rivulet-db/rivulet/pkg/types"
	"github.com/rivulet-db/rivulet/pkg/view"
	"github.com/rivulet-db/rivulet/pkg/wal"
)

// Engine ties the components together. All statement methods are safe for
// concurrent use; effects become observable at epoch commit, or immediately in
// sync-flush mode.
type Engine struct {
	cfg       config.Config
	scheduler *epoch.Scheduler
	views     *view.Manager
	changeLog *wal.Log
	log       logr.Logger
}

// Open creates an engine. When the config names a WAL directory, an existing change
// log is replayed first: committed epochs are re-applied, a torn tail from a crash
// mid-commit is discarded and the log trimmed back to the last confirmed commit.
func Open(cfg config.Config, log logr.Logger) (*Engine, error) {
	var changeLog *wal.Log
	if cfg.WALDir != "" {
		l, err := wal.Open(cfg.WALDir)
		if err != nil {
			return nil, err
		}
		changeLog = l
	}

	views := view.NewManager(log)
	scheduler := epoch.NewScheduler(views, changeLog, epoch.Options{
		SyncFlush:     cfg.SyncFlush,
		CommitRetries: cfg.CommitRetries,
		PoolWorkers:   cfg.PropagationWorkers,
	}, log)

	e := &Engine{
		cfg:       cfg,
		scheduler: scheduler,
		views:     views,
		changeLog: changeLog,
		log:       log.WithName("engine"),
	}
	e.log.Info("engine starting", "build", buildinfo.Get().String(),
		"sync-flush", cfg.SyncFlush, "durable", changeLog != nil)

	if changeLog != nil {
		discarded, err := scheduler.Recover()
		if err != nil {
			return nil, err
		}
		if discarded {
			e.log.Info("recovered from interrupted epoch commit",
				"committed-epoch", scheduler.CommittedEpoch())
		}
	}
	return e, nil
}

// Close flushes staged work and closes the change log.
func (e *Engine) Close() error {
	if err := e.scheduler.Flush(); err != nil {
		return err
	}
	if e.changeLog != nil {
		return e.changeLog.Close()
	}
	return nil
}

// CreateAppendOnlyTable runs CREATE TABLE name(cols...) APPEND ONLY.
func (e *Engine) CreateAppendOnlyTable(name string, schema types.Schema) error {
	_, err := e.scheduler.CreateAppendOnly(name, schema)
	return err
}

// CreateVersionedTable runs CREATE TABLE name(cols..., PRIMARY KEY(pkColumn)).
func (e *Engine) CreateVersionedTable(name string, schema types.Schema, pkColumn string) error {
	_, err := e.scheduler.CreateVersioned(name, schema, pkColumn)
	return err
}

// Insert runs INSERT INTO table VALUES (rows...). Against an append-only table the
// rows join the history; against a versioned table each row upserts its primary key,
// retracting any live row on the same key in the same epoch. The whole statement is
// validated before any of it is staged: a schema mismatch leaves no partial effect.
func (e *Engine) Insert(tableName string, rows ...types.Row) error {
	if stream, err := e.scheduler.GetAppendOnly(tableName); err == nil {
		for _, row := range rows {
			if err := stream.Schema().Validate(row); err != nil {
				return err
			}
		}
		records := make([]change.Record, 0, len(rows))
		for _, row := range rows {
			rec, err := stream.StageAppend(row)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return e.scheduler.Submit(records)
	}

	versioned, err := e.scheduler.GetVersioned(tableName)
	if err != nil {
		return fmt.Errorf("%w: table %q", types.ErrNotFound, tableName)
	}
	for _, row := range rows {
		if err := versioned.Schema().Validate(row); err != nil {
			return err
		}
		// Checked before any row is staged: a rejected row must leave no trace of
		// its statement.
		if versioned.PrimaryKey(row).IsNull() {
			return fmt.Errorf("%w: NULL primary key in table %q", types.ErrSchemaMismatch, tableName)
		}
	}
	var records []change.Record
	for _, row := range rows {
		recs, err := versioned.StageUpsert(row)
		if err != nil {
			return err
		}
		records = append(records, recs...)
	}
	return e.scheduler.Submit(records)
}

// Delete runs DELETE FROM table [WHERE pk IN (keys...)]. With no keys it is the mass
// delete: every live row is retracted, and the statement succeeds even on an empty
// table. Deleting absent keys is a success with zero rows affected. Only versioned
// tables support deletes; an append-only target fails with UnsupportedOperation.
func (e *Engine) Delete(tableName string, keys ...types.Datum) error {
	if stream, err := e.scheduler.GetAppendOnly(tableName); err == nil {
		return stream.StageDelete()
	}

	versioned, err := e.scheduler.GetVersioned(tableName)
	if err != nil {
		return fmt.Errorf("%w: table %q", types.ErrNotFound, tableName)
	}

	var records []change.Record
	if len(keys) == 0 {
		records, err = versioned.StageDeleteAll()
		if err != nil {
			return err
		}
	} else {
		for _, key := range keys {
			recs, err := versioned.StageDelete(key)
			if err != nil {
				return err
			}
			records = append(records, recs...)
		}
	}
	return e.scheduler.Submit(records)
}

// CreateMaterializedView runs CREATE MATERIALIZED VIEW name AS <snapshot join>. The
// view is populated synchronously from the stream table's full history against the
// versioned table's state as of the creation epoch, and is queryable on return.
func (e *Engine) CreateMaterializedView(name string, p plan.SnapshotJoin) error {
	_, err := e.scheduler.CreateView(name, p)
	return err
}

// DropMaterializedView runs DROP MATERIALIZED VIEW name, discarding the view's
// snapshot index and state. Base tables are unaffected.
func (e *Engine) DropMaterializedView(name string) error {
	return e.scheduler.DropView(name)
}

// RecomputeMaterializedView tears a view down and rebuilds it from scratch against
// the current versioned-table state, as one indivisible operation. Equivalent to
// DROP + CREATE with the same plan, exposed separately so callers need not race DDL.
func (e *Engine) RecomputeMaterializedView(name string) error {
	_, err := e.scheduler.RecomputeView(name)
	return err
}

// Flush commits all staged statements as one epoch and waits for the commit.
func (e *Engine) Flush() error {
	return e.scheduler.Flush()
}

// SetSyncFlush toggles the global synchronous-flush setting at runtime.
func (e *Engine) SetSyncFlush(on bool) {
	e.scheduler.SetSyncFlush(on)
}

// CommittedEpoch returns the latest fully committed epoch.
func (e *Engine) CommittedEpoch() types.Epoch {
	return e.scheduler.CommittedEpoch()
}
