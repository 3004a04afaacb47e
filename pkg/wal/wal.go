// Package wal implements the durable change log. Every epoch is written as one
// frame: a begin marker, the epoch's entries, and a fsynced commit marker. Replay
// surfaces only fully committed frames; a torn tail (crash mid-commit) is reported
// and discarded, never half-applied.
package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rivulet-db/rivulet/pkg/change"
	"github.com/rivulet-db/rivulet/pkg/plan"
	"github.com/rivulet-db/rivulet/pkg/types"
)

// EntryKind tags a log entry.
type EntryKind uint8

const (
	EntryBegin EntryKind = iota + 1
	EntryChange
	EntryDDL
	EntryCommit
)

// ChangeEntry is a logged change record.
type ChangeEntry struct {
	Op    change.Op `json:"op"`
	Table string    `json:"table"`
	Row   types.Row `json:"row"`
}

// DDL statement kinds recorded in the log.
const (
	DDLCreateAppendOnly = "create_append_only"
	DDLCreateVersioned  = "create_versioned"
	DDLCreateView       = "create_view"
	DDLDropView         = "drop_view"
)

// DDLEntry is a logged schema statement. Replaying DDL in epoch order rebuilds the
// catalog and re-derives every view deterministically.
type DDLEntry struct {
	Kind       string             `json:"kind"`
	Name       string             `json:"name"`
	Schema     *types.Schema      `json:"schema,omitempty"`
	PrimaryKey string             `json:"primaryKey,omitempty"`
	Plan       *plan.SnapshotJoin `json:"plan,omitempty"`
}

// Entry is one log record.
type Entry struct {
	Kind   EntryKind    `json:"kind"`
	Epoch  types.Epoch  `json:"epoch,omitempty"`
	Change *ChangeEntry `json:"change,omitempty"`
	DDL    *DDLEntry    `json:"ddl,omitempty"`
}

const logFileName = "change.log"

// maxEntrySize bounds a single entry frame so a corrupt length prefix cannot drive
// an allocation of arbitrary size during replay.
const maxEntrySize = 64 << 20

// Log is an append-only, epoch-framed change log backed by a single file.
type Log struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	filePath string
}

// Open creates or opens the change log under dir.
func Open(dir string) (*Log, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty change log dir")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create change log directory: %w", err)
	}

	filePath := filepath.Join(dir, logFileName)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open change log: %w", err)
	}

	return &Log{
		file:     file,
		writer:   bufio.NewWriter(file),
		filePath: filePath,
	}, nil
}

// AppendFrame durably writes one epoch frame. The commit marker only reaches the
// file after every entry, and the write is flushed and synced before returning, so
// a frame is either fully present or has no commit marker.
func (l *Log) AppendFrame(epoch types.Epoch, entries []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writeEntry(Entry{Kind: EntryBegin, Epoch: epoch}); err != nil {
		return err
	}
	for _, e := range entries {
		if e.Kind != EntryChange && e.Kind != EntryDDL {
			return fmt.Errorf("frame entries must be change or DDL records, got kind %d", e.Kind)
		}
		if err := l.writeEntry(e); err != nil {
			return err
		}
	}
	if err := l.writeEntry(Entry{Kind: EntryCommit, Epoch: epoch}); err != nil {
		return err
	}

	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush change log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync change log: %w", err)
	}
	return nil
}

func (l *Log) writeEntry(e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode change log entry: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := l.writer.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("failed to write change log entry: %w", err)
	}
	if _, err := l.writer.Write(payload); err != nil {
		return fmt.Errorf("failed to write change log entry: %w", err)
	}
	return nil
}

// Replay invokes fn once per committed frame, in epoch order. It returns true when
// an uncommitted tail was found and discarded - the RecoveryRequired case: the
// partially written epoch is redone by the caller, never left half-applied.
func (l *Log) Replay(fn func(epoch types.Epoch, entries []Entry) error) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Flush(); err != nil {
		return false, fmt.Errorf("failed to flush change log before replay: %w", err)
	}

	file, err := os.Open(l.filePath)
	if err != nil {
		return false, fmt.Errorf("failed to open change log for replay: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var frame []Entry
	var frameEpoch types.Epoch
	inFrame := false

	for {
		entry, err := readEntry(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// A clean EOF outside a frame is a complete log; anything else is
				// a torn tail from a crash mid-commit.
				return inFrame, nil
			}
			return inFrame, fmt.Errorf("%w: change log damaged beyond the uncommitted tail: %v",
				types.ErrRecoveryRequired, err)
		}

		switch entry.Kind {
		case EntryBegin:
			if inFrame {
				return true, fmt.Errorf("%w: nested begin marker at epoch %d",
					types.ErrRecoveryRequired, entry.Epoch)
			}
			inFrame = true
			frameEpoch = entry.Epoch
			frame = nil
		case EntryChange, EntryDDL:
			if !inFrame {
				return false, fmt.Errorf("%w: change entry outside epoch frame",
					types.ErrRecoveryRequired)
			}
			frame = append(frame, entry)
		case EntryCommit:
			if !inFrame || entry.Epoch != frameEpoch {
				return false, fmt.Errorf("%w: commit marker for epoch %d does not match frame %d",
					types.ErrRecoveryRequired, entry.Epoch, frameEpoch)
			}
			inFrame = false
			if err := fn(frameEpoch, frame); err != nil {
				return false, err
			}
		default:
			return false, fmt.Errorf("%w: unknown change log entry kind %d",
				types.ErrRecoveryRequired, entry.Kind)
		}
	}
}

func readEntry(reader *bufio.Reader) (Entry, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(reader, lenBuf[:]); err != nil {
		return Entry{}, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxEntrySize {
		return Entry{}, fmt.Errorf("entry length %d exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		// A half-written payload at the file end decodes as garbage; report it the
		// same way as a short read so the caller discards the tail.
		return Entry{}, io.ErrUnexpectedEOF
	}
	return entry, nil
}

// Truncate discards the log contents. Used after a recovery replay folded the log
// into a fresh baseline, and by tests.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate change log: %w", err)
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	l.writer.Reset(l.file)
	return nil
}

// Close flushes and closes the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}
