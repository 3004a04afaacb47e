package epoch

import (
	"fmt"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/table"
	"github.com/rivulet-db/rivulet/pkg/types"
	"github.com/rivulet-db/rivulet/pkg/wal"
)

// Recover replays the change log into an empty scheduler, rebuilding catalog,
// tables, snapshot indexes, and view state deterministically. It returns true when
// an uncommitted tail had to be discarded (a crash mid-epoch-commit); the tail is
// then trimmed from the log so later appends start from the last confirmed commit.
func (s *Scheduler) Recover() (bool, error) {
	if s.changeLog == nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed != 0 || s.streams.Size() != 0 || s.versioned.Size() != 0 {
		return false, fmt.Errorf("recovery requires an empty engine")
	}

	var frames []replayedFrame
	discarded, err := s.changeLog.Replay(func(epoch types.Epoch, entries []wal.Entry) error {
		frames = append(frames, replayedFrame{epoch: epoch, entries: entries})
		return s.replayFrameLocked(epoch, entries)
	})
	if err != nil {
		return discarded, fmt.Errorf("change log replay failed: %w", err)
	}

	if discarded {
		s.log.Info("discarded uncommitted change log tail",
			"reason", types.ErrRecoveryRequired, "last-committed-epoch", s.committed)
		if err := s.rewriteLogLocked(frames); err != nil {
			return true, err
		}
	}
	return discarded, nil
}

type replayedFrame struct {
	epoch   types.Epoch
	entries []wal.Entry
}

// replayFrameLocked re-applies one committed epoch frame without re-logging it.
func (s *Scheduler) replayFrameLocked(epoch types.Epoch, entries []wal.Entry) error {
	if epoch != s.committed+1 {
		return fmt.Errorf("%w: epoch %d out of order after %d", types.ErrRecoveryRequired, epoch, s.committed)
	}

	var records []change.Record
	for _, e := range entries {
		switch e.Kind {
		case wal.EntryDDL:
			if err := s.replayDDLLocked(epoch, *e.DDL); err != nil {
				return err
			}
		case wal.EntryChange:
			rec := change.Record{Op: e.Change.Op, TableID: e.Change.Table, Row: e.Change.Row}
			if err := s.stageReplayedLocked(rec); err != nil {
				return err
			}
			records = append(records, rec)
		default:
			return fmt.Errorf("%w: unexpected entry kind %d in committed frame", types.ErrRecoveryRequired, e.Kind)
		}
	}

	if len(records) > 0 {
		if err := s.applyLocked(epoch, records); err != nil {
			return err
		}
	}
	s.committed = epoch
	return nil
}

func (s *Scheduler) replayDDLLocked(epoch types.Epoch, ddl wal.DDLEntry) error {
	switch ddl.Kind {
	case wal.DDLCreateAppendOnly:
		s.streams.Store(ddl.Name, table.NewAppendOnly(ddl.Name, *ddl.Schema))
	case wal.DDLCreateVersioned:
		t, err := table.NewVersioned(ddl.Name, *ddl.Schema, ddl.PrimaryKey)
		if err != nil {
			return err
		}
		s.versioned.Store(ddl.Name, t)
	case wal.DDLCreateView:
		stream, versioned, err := s.resolvePlanLocked(*ddl.Plan)
		if err != nil {
			return err
		}
		// The frame's epoch is the view's original creation epoch, so the rescan
		// re-derives the exact state the view had.
		if _, err := s.views.Create(ddl.Name, *ddl.Plan, stream, versioned, epoch); err != nil {
			return err
		}
	case wal.DDLDropView:
		if err := s.views.Drop(ddl.Name); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown DDL kind %q", types.ErrRecoveryRequired, ddl.Kind)
	}
	return nil
}

func (s *Scheduler) stageReplayedLocked(rec change.Record) error {
	if t, ok := s.streams.Load(rec.TableID); ok {
		return t.StageRecord(rec)
	}
	if t, ok := s.versioned.Load(rec.TableID); ok {
		return t.StageRecord(rec)
	}
	return fmt.Errorf("%w: table %q referenced by change log", types.ErrNotFound, rec.TableID)
}

// rewriteLogLocked rebuilds the log from the replayed frames, dropping the torn
// tail.
func (s *Scheduler) rewriteLogLocked(frames []replayedFrame) error {
	if err := s.changeLog.Truncate(); err != nil {
		return err
	}
	for _, f := range frames {
		if err := s.changeLog.AppendFrame(f.epoch, f.entries); err != nil {
			return err
		}
	}
	return nil
}
