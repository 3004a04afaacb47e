// Package epoch implements the commit protocol. Mutations staged by statements are
// grouped into epochs; an epoch commit durably logs the batch, applies base-table
// and snapshot-index updates, and propagates stream-side insertions into every
// dependent view - all behind a single boundary, so no reader or operator ever
// observes a torn mix of pre- and post-mutation state.
package epoch

import (
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-logr/logr"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/index"
	"github.com/rivulet-db/rivulet/pkg/table"
	"github.com/rivulet-db/rivulet/pkg/types"
	"github.com/rivulet-db/rivulet/pkg/view"
	"github.com/rivulet-db/rivulet/pkg/wal"
)

// Options tunes the scheduler.
type Options struct {
	// SyncFlush forces a commit after every statement submission, making each
	// statement's effects observable before it returns. Deterministic but slow;
	// meant for tests and debugging.
	SyncFlush bool
	// CommitRetries bounds the internal retries on snapshot index contention before
	// the commit surfaces a fatal statement error.
	CommitRetries int
	// PoolWorkers sizes the per-view propagation worker pool.
	PoolWorkers int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{CommitRetries: 8, PoolWorkers: 4}
}

// Scheduler assigns epochs and runs the commit protocol. All staging and committing
// is serialized on one mutex, which is the boundary readers and operators observe:
// an epoch's effects become visible all at once or not at all.
type Scheduler struct {
	mu        sync.Mutex
	batch     change.Batch
	committed types.Epoch
	syncFlush bool

	streams   *xsync.Map[string, *table.AppendOnly]
	versioned *xsync.Map[string, *table.Versioned]
	views     *view.Manager

	changeLog *wal.Log // nil when durability is disabled
	pool      pond.Pool
	retries   int
	log       logr.Logger
}

// NewScheduler creates a scheduler over the given view manager.
func NewScheduler(views *view.Manager, changeLog *wal.Log, opts Options, log logr.Logger) *Scheduler {
	retries := opts.CommitRetries
	if retries <= 0 {
		retries = DefaultOptions().CommitRetries
	}
	workers := opts.PoolWorkers
	if workers <= 0 {
		workers = DefaultOptions().PoolWorkers
	}
	return &Scheduler{
		streams:   xsync.NewMap[string, *table.AppendOnly](),
		versioned: xsync.NewMap[string, *table.Versioned](),
		views:     views,
		changeLog: changeLog,
		pool:      pond.NewPool(workers),
		retries:   retries,
		syncFlush: opts.SyncFlush,
		log:       log.WithName("scheduler"),
	}
}

// RegisterAppendOnly adds an append-only table to the commit path.
func (s *Scheduler) RegisterAppendOnly(t *table.AppendOnly) {
	s.streams.Store(t.Name(), t)
}

// RegisterVersioned adds a versioned table to the commit path.
func (s *Scheduler) RegisterVersioned(t *table.Versioned) {
	s.versioned.Store(t.Name(), t)
}

// SetSyncFlush toggles the global synchronous-flush mode.
func (s *Scheduler) SetSyncFlush(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncFlush = on
}

// CommittedEpoch returns the latest fully committed epoch.
func (s *Scheduler) CommittedEpoch() types.Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Submit stages a statement's change records for the next epoch. In sync-flush mode
// the epoch commits before Submit returns.
func (s *Scheduler) Submit(records []change.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch.Append(records...)
	if s.syncFlush {
		return s.flushLocked()
	}
	return nil
}

// Flush commits all staged records as one epoch. A no-op when nothing is staged.
func (s *Scheduler) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Scheduler) flushLocked() error {
	if s.batch.Empty() {
		return nil
	}

	epoch := s.committed + 1
	records := s.batch.Records

	if s.changeLog != nil {
		entries := make([]wal.Entry, 0, len(records))
		for _, r := range records {
			entries = append(entries, wal.Entry{
				Kind:   wal.EntryChange,
				Change: &wal.ChangeEntry{Op: r.Op, Table: r.TableID, Row: r.Row},
			})
		}
		if err := s.changeLog.AppendFrame(epoch, entries); err != nil {
			s.abortLocked()
			return fmt.Errorf("failed to log epoch %d: %w", epoch, err)
		}
	}

	if err := s.applyLocked(epoch, records); err != nil {
		// Past the durable point: the frame is logged and base tables committed, so
		// the epoch must still count as spent. Dropping the batch keeps a retry from
		// double-staging the records into the indexes or re-logging the epoch.
		s.batch.Reset()
		s.committed = epoch
		return err
	}

	s.batch.Reset()
	s.committed = epoch
	s.log.V(1).Info("epoch committed", "epoch", epoch, "records", len(records))
	return nil
}

// applyLocked runs the in-memory half of the commit: base tables first, then every
// view's snapshot index, then stream-side join propagation. Versioned-table state
// therefore always commits before any stream row of the same epoch is joined.
func (s *Scheduler) applyLocked(epoch types.Epoch, records []change.Record) error {
	s.versioned.Range(func(_ string, t *table.Versioned) bool {
		t.Commit()
		return true
	})
	s.streams.Range(func(_ string, t *table.AppendOnly) bool {
		t.Commit()
		return true
	})

	var commitErr error
	s.views.Range(func(v *view.View) bool {
		v.StageIndex(records)
		if err := s.commitIndex(v.Index(), epoch); err != nil {
			commitErr = fmt.Errorf("failed to commit snapshot index of view %q: %w", v.Name(), err)
			return false
		}
		return true
	})
	if commitErr != nil {
		return commitErr
	}

	// One task per view: the view state has a single writer, tasks never share
	// mutable structure.
	group := s.pool.NewGroup()
	s.views.Range(func(v *view.View) bool {
		rows := streamRows(records, v.Plan().Stream)
		if len(rows) == 0 {
			return true
		}
		group.SubmitErr(func() error {
			return v.ProcessStreamRows(epoch, rows)
		})
		return true
	})
	if err := group.Wait(); err != nil {
		return fmt.Errorf("failed to propagate epoch %d: %w", epoch, err)
	}

	// No lookup below the just-committed epoch can happen anymore: collapse the
	// superseded version history.
	s.views.Range(func(v *view.View) bool {
		v.Index().Prune(epoch)
		return true
	})
	return nil
}

// commitIndex applies a staged index batch, retrying contention a bounded number of
// times before giving up.
func (s *Scheduler) commitIndex(idx *index.Snapshot, epoch types.Epoch) error {
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		err = idx.TryCommit(epoch)
		if err == nil {
			return nil
		}
		if err != index.ErrContended {
			return err
		}
		time.Sleep(time.Millisecond << attempt)
	}
	return fmt.Errorf("snapshot index commit failed after %d attempts: %w", s.retries, err)
}

func (s *Scheduler) abortLocked() {
	s.versioned.Range(func(_ string, t *table.Versioned) bool {
		t.Abort()
		return true
	})
	s.streams.Range(func(_ string, t *table.AppendOnly) bool {
		t.Abort()
		return true
	})
	s.views.Range(func(v *view.View) bool {
		v.Index().Abort()
		return true
	})
	s.batch.Reset()
}

// streamRows extracts, in submission order, the inserted rows targeting the given
// append-only table.
func streamRows(records []change.Record, tableID string) []types.Row {
	var rows []types.Row
	for _, r := range records {
		if r.TableID == tableID && r.Op == change.OpInsert {
			rows = append(rows, r.Row)
		}
	}
	return rows
}
