// Package zset implements Z-sets (multisets with integer multiplicities) over typed
// rows. Z-sets are the delta representation exchanged between operators: an insert is
// a row with multiplicity +1, a retraction the same row with -1, and duplicate rows
// accumulate multiplicity instead of being deduplicated.
package zset

import (
	"fmt"

	"github.com/rivulet-db/rivulet/pkg/types"
)

// RowZSet is a Z-set of rows. Rows are keyed by their canonical rendering since row
// slices are not directly comparable.
type RowZSet struct {
	rows   map[string]types.Row // canonical key -> row
	counts map[string]int       // canonical key -> multiplicity
}

// ZSetError wraps failures in Z-set operations.
type ZSetError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ZSetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func newZSetError(message string, cause error) error {
	return &ZSetError{Message: message, Cause: cause}
}

// New creates an empty RowZSet.
func New() *RowZSet {
	return &RowZSet{
		rows:   make(map[string]types.Row),
		counts: make(map[string]int),
	}
}

// FromRows builds a Z-set from rows, each with multiplicity 1.
func FromRows(rows []types.Row) (*RowZSet, error) {
	zs := New()
	for _, row := range rows {
		if err := zs.AddRowMutate(row, 1); err != nil {
			return nil, err
		}
	}
	return zs, nil
}

// AddRow adds a row with the given multiplicity and returns a new Z-set. The
// receiver is unchanged; the row is copied.
func (zs *RowZSet) AddRow(row types.Row, count int) (*RowZSet, error) {
	result := zs.Copy()
	err := result.AddRowMutate(row, count)
	return result, err
}

// AddRowMutate adds a row with the given multiplicity in place. Entries whose
// multiplicity reaches zero are removed.
func (zs *RowZSet) AddRowMutate(row types.Row, count int) error {
	if count == 0 {
		return nil
	}

	key, err := types.RowKey(row)
	if err != nil {
		return newZSetError("failed to compute row key", err)
	}

	if _, exists := zs.counts[key]; exists {
		zs.counts[key] += count
	} else {
		zs.rows[key] = row.Copy()
		zs.counts[key] = count
	}

	if zs.counts[key] == 0 {
		delete(zs.counts, key)
		delete(zs.rows, key)
	}

	return nil
}

// Add performs Z-set addition (union with multiplicities) into a new Z-set.
func (zs *RowZSet) Add(other *RowZSet) (*RowZSet, error) {
	if other == nil {
		return zs.Copy(), nil
	}

	result := zs.Copy()
	for key, count := range other.counts {
		if err := result.AddRowMutate(other.rows[key], count); err != nil {
			return nil, newZSetError("failed to add row during Z-set addition", err)
		}
	}
	return result, nil
}

// Subtract performs Z-set subtraction into a new Z-set.
func (zs *RowZSet) Subtract(other *RowZSet) (*RowZSet, error) {
	if other == nil {
		return zs.Copy(), nil
	}

	result := zs.Copy()
	for key, count := range other.counts {
		if err := result.AddRowMutate(other.rows[key], -count); err != nil {
			return nil, newZSetError("failed to subtract row during Z-set subtraction", err)
		}
	}
	return result, nil
}

// Distinct converts to set semantics: every positive multiplicity becomes 1,
// non-positive entries are dropped.
func (zs *RowZSet) Distinct() *RowZSet {
	result := New()
	for key, count := range zs.counts {
		if count > 0 {
			result.rows[key] = zs.rows[key].Copy()
			result.counts[key] = 1
		}
	}
	return result
}

// Copy returns an independent copy of the Z-set.
func (zs *RowZSet) Copy() *RowZSet {
	result := New()
	for key, count := range zs.counts {
		result.rows[key] = zs.rows[key].Copy()
		result.counts[key] = count
	}
	return result
}

// Size returns the total multiplicity of positive entries.
func (zs *RowZSet) Size() int {
	total := 0
	for _, count := range zs.counts {
		if count > 0 {
			total += count
		}
	}
	return total
}

// Unique returns the number of distinct rows.
func (zs *RowZSet) Unique() int { return len(zs.counts) }

// IsZero reports whether the Z-set is empty.
func (zs *RowZSet) IsZero() bool { return len(zs.counts) == 0 }

// Multiplicity returns the multiplicity of the given row, 0 if absent.
func (zs *RowZSet) Multiplicity(row types.Row) (int, error) {
	key, err := types.RowKey(row)
	if err != nil {
		return 0, newZSetError("failed to compute row key", err)
	}
	return zs.counts[key], nil
}

// ForEach visits each distinct row with its multiplicity. Iteration order is
// unspecified. The callback must not retain the row.
func (zs *RowZSet) ForEach(fn func(row types.Row, count int) error) error {
	for key, count := range zs.counts {
		if err := fn(zs.rows[key], count); err != nil {
			return err
		}
	}
	return nil
}

// Collect expands the Z-set into a flat bag: each row repeated by its positive
// multiplicity. Negative entries are skipped.
func (zs *RowZSet) Collect() []types.Row {
	var out []types.Row
	for key, count := range zs.counts {
		for i := 0; i < count; i++ {
			out = append(out, zs.rows[key].Copy())
		}
	}
	return out
}

// String renders the Z-set for debugging.
func (zs *RowZSet) String() string {
	s := "{"
	first := true
	for key, count := range zs.counts {
		if !first {
			s += ", "
		}
		s += fmt.Sprintf("%s:%d", zs.rows[key], count)
		first = false
	}
	return s + "}"
}
