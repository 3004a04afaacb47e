// Package change defines the atomic unit of mutation flowing through the engine: a
// change record tagging a typed row with an operation and the table it belongs to.
// Records are immutable once created; batches collect the records staged for one
// epoch in submission order.
package change

import (
	"fmt"

	"github.com/rivulet-db/rivulet/pkg/types"
)

// Op tags a change record as an insertion or a retraction.
type Op int

const (
	OpInsert Op = iota
	OpDelete
)

// String returns the op tag name.
func (o Op) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Record is one mutation: an op, the target table, and the full row. For deletes
// against a versioned table the row is the retracted live row, so downstream
// consumers never need to re-read the table to learn what disappeared.
type Record struct {
	Op      Op
	TableID string
	Row     types.Row
}

// NewInsert builds an insert record. The row is copied.
func NewInsert(tableID string, row types.Row) Record {
	return Record{Op: OpInsert, TableID: tableID, Row: row.Copy()}
}

// NewDelete builds a delete record. The row is copied.
func NewDelete(tableID string, row types.Row) Record {
	return Record{Op: OpDelete, TableID: tableID, Row: row.Copy()}
}

// String renders the record for logs.
func (r Record) String() string {
	return fmt.Sprintf("%s %s %s", r.Op, r.TableID, r.Row)
}

// Batch is the ordered set of records staged for a single epoch. Order is submission
// order; the scheduler relies on it to apply versioned-table mutations before
// stream-side records within the same epoch are joined.
type Batch struct {
	Records []Record
}

// Append adds records to the batch.
func (b *Batch) Append(records ...Record) {
	b.Records = append(b.Records, records...)
}

// Len returns the number of staged records.
func (b *Batch) Len() int { return len(b.Records) }

// Empty reports whether the batch holds no records.
func (b *Batch) Empty() bool { return len(b.Records) == 0 }

// ForTable returns the batch's records targeting the given table, in order.
func (b *Batch) ForTable(tableID string) []Record {
	var out []Record
	for _, r := range b.Records {
		if r.TableID == tableID {
			out = append(out, r)
		}
	}
	return out
}

// Reset discards all staged records.
func (b *Batch) Reset() { b.Records = nil }
