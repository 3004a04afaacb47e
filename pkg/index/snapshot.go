// Package index implements the snapshot index: a point-lookup structure over a
// versioned table's current rows, keyed by the join predicate's key column and
// versioned by epoch. Each key holds a chain of epoch-stamped versions so a lookup
// as of any still-retained epoch returns exactly the row (or absence) that was live
// then, never a torn mix of old and new state.
package index

import (
	"fmt"
	"sync"

	"github.com/zhangyunhao116/skipmap"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/types"
)

// version is one epoch-stamped state of a key: either a live row or a tombstone.
type version struct {
	from      types.Epoch
	row       types.Row
	tombstone bool
}

// chain is the version history of one key, ascending by epoch. Within an epoch the
// last staged record wins, so a chain never holds two versions with the same epoch.
type chain struct {
	versions []version
}

// latestAsOf returns the newest version with from <= epoch.
func (c *chain) latestAsOf(epoch types.Epoch) (version, bool) {
	for i := len(c.versions) - 1; i >= 0; i-- {
		if c.versions[i].from <= epoch {
			return c.versions[i], true
		}
	}
	return version{}, false
}

// apply records a new version for the given epoch, replacing an existing version of
// the same epoch.
func (c *chain) apply(v version) {
	if n := len(c.versions); n > 0 && c.versions[n-1].from == v.from {
		c.versions[n-1] = v
		return
	}
	c.versions = append(c.versions, v)
}

// prune drops versions superseded as of the watermark epoch. The newest version at
// or below the watermark is retained so lookups at the watermark still resolve.
func (c *chain) prune(watermark types.Epoch) {
	keep := 0
	for i, v := range c.versions {
		if v.from <= watermark {
			keep = i
		}
	}
	c.versions = c.versions[keep:]
}

// dead reports whether the chain can be dropped entirely: a single tombstone at or
// below the watermark matches every future lookup to "absent".
func (c *chain) dead(watermark types.Epoch) bool {
	return len(c.versions) == 1 && c.versions[0].tombstone && c.versions[0].from <= watermark
}

// Snapshot is the index over one versioned table for one view. It is exclusively
// mutated by the epoch commit path; operators only hold read access.
type Snapshot struct {
	tableID   string
	keyColumn int

	mu             sync.Mutex
	chains         *skipmap.FuncMap[string, *chain]
	staged         []change.Record
	committedEpoch types.Epoch
}

// NewSnapshot creates an empty snapshot index over the given table, keyed by the
// column at keyColumn in the table's schema.
func NewSnapshot(tableID string, keyColumn int) *Snapshot {
	return &Snapshot{
		tableID:   tableID,
		keyColumn: keyColumn,
		chains:    skipmap.NewFunc[string, *chain](func(a, b string) bool { return a < b }),
	}
}

// TableID returns the indexed table's name.
func (s *Snapshot) TableID() string { return s.tableID }

// CommittedEpoch returns the newest fully committed epoch.
func (s *Snapshot) CommittedEpoch() types.Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committedEpoch
}

// Stage buffers change records for the in-flight epoch. Records for other tables are
// ignored so a whole epoch batch can be staged as-is.
func (s *Snapshot) Stage(records []change.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.TableID == s.tableID {
			s.staged = append(s.staged, r)
		}
	}
}

// Commit applies all staged records atomically as the given epoch. Lookups at
// earlier epochs keep resolving against the retained version chains.
func (s *Snapshot) Commit(epoch types.Epoch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(epoch)
}

// TryCommit is Commit except it fails fast with ErrContended when the index lock is
// held, letting the scheduler retry a bounded number of times.
func (s *Snapshot) TryCommit(epoch types.Epoch) error {
	if !s.mu.TryLock() {
		return ErrContended
	}
	defer s.mu.Unlock()
	return s.commitLocked(epoch)
}

// ErrContended signals that the index lock was held by a concurrent commit.
var ErrContended = fmt.Errorf("snapshot index contended")

func (s *Snapshot) commitLocked(epoch types.Epoch) error {
	if epoch <= s.committedEpoch {
		return fmt.Errorf("commit epoch %d not after committed epoch %d", epoch, s.committedEpoch)
	}
	for _, r := range s.staged {
		key, err := types.DatumKey(r.Row[s.keyColumn])
		if err != nil {
			return fmt.Errorf("failed to key change record %s: %w", r, err)
		}
		c, _ := s.chains.LoadOrStore(key, &chain{})
		switch r.Op {
		case change.OpInsert:
			c.apply(version{from: epoch, row: r.Row})
		case change.OpDelete:
			c.apply(version{from: epoch, tombstone: true})
		}
	}
	s.staged = nil
	s.committedEpoch = epoch
	return nil
}

// Abort discards staged records.
func (s *Snapshot) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = nil
}

// Lookup returns the row live for the given join key as of the given epoch. The
// epoch must already be committed: reads never observe a partially applied epoch.
func (s *Snapshot) Lookup(key types.Datum, epoch types.Epoch) (types.Row, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch > s.committedEpoch {
		return nil, false, fmt.Errorf("lookup epoch %d ahead of committed epoch %d", epoch, s.committedEpoch)
	}

	k, err := types.DatumKey(key)
	if err != nil {
		return nil, false, err
	}
	c, ok := s.chains.Load(k)
	if !ok {
		return nil, false, nil
	}
	v, ok := c.latestAsOf(epoch)
	if !ok || v.tombstone {
		return nil, false, nil
	}
	return v.row.Copy(), true, nil
}

// Prune discards version history no lookup can reach anymore: every epoch at or
// below the watermark is collapsed into the single version live at the watermark.
func (s *Snapshot) Prune(watermark types.Epoch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var drop []string
	s.chains.Range(func(key string, c *chain) bool {
		c.prune(watermark)
		if c.dead(watermark) {
			drop = append(drop, key)
		}
		return true
	})
	for _, key := range drop {
		s.chains.Delete(key)
	}
}

// Len returns the number of keys with retained history.
func (s *Snapshot) Len() int { return s.chains.Len() }
