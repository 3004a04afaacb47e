// Package types holds the value model shared by every engine component: typed datums,
// column schemas, and rows. Rows are ordered tuples without identity; canonical keys
// (see key.go) give them multiset identity where needed.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnType enumerates the scalar types a column can carry.
type ColumnType int

const (
	TypeInvalid ColumnType = iota
	TypeInt64
	TypeFloat64
	TypeString
	TypeBool
)

// String returns the SQL-ish name of the type.
func (t ColumnType) String() string {
	switch t {
	case TypeInt64:
		return "BIGINT"
	case TypeFloat64:
		return "DOUBLE"
	case TypeString:
		return "VARCHAR"
	case TypeBool:
		return "BOOLEAN"
	default:
		return "INVALID"
	}
}

// Datum is a single typed value. The zero Datum is NULL.
type Datum struct {
	typ    ColumnType
	isNull bool

	i int64
	f float64
	s string
	b bool
}

// Null returns a NULL datum. NULLs carry no type: they compare equal to each other and
// join-extend any column type.
func Null() Datum { return Datum{isNull: true} }

// Int returns an int64 datum.
func Int(v int64) Datum { return Datum{typ: TypeInt64, i: v} }

// Float returns a float64 datum.
func Float(v float64) Datum { return Datum{typ: TypeFloat64, f: v} }

// String_ returns a string datum.
func String_(v string) Datum { return Datum{typ: TypeString, s: v} }

// Bool returns a bool datum.
func Bool(v bool) Datum { return Datum{typ: TypeBool, b: v} }

// IsNull reports whether the datum is NULL.
func (d Datum) IsNull() bool { return d.isNull }

// Type returns the datum's column type, TypeInvalid for NULL.
func (d Datum) Type() ColumnType {
	if d.isNull {
		return TypeInvalid
	}
	return d.typ
}

// Int64 returns the int64 payload. Valid only when Type() == TypeInt64.
func (d Datum) Int64() int64 { return d.i }

// Float64 returns the float64 payload.
func (d Datum) Float64() float64 { return d.f }

// Str returns the string payload.
func (d Datum) Str() string { return d.s }

// Boolean returns the bool payload.
func (d Datum) Boolean() bool { return d.b }

// Equal reports value equality. Two NULLs are equal for multiset identity purposes
// (bag membership, not SQL three-valued logic).
func (d Datum) Equal(other Datum) bool {
	if d.isNull || other.isNull {
		return d.isNull == other.isNull
	}
	if d.typ != other.typ {
		return false
	}
	switch d.typ {
	case TypeInt64:
		return d.i == other.i
	case TypeFloat64:
		return d.f == other.f
	case TypeString:
		return d.s == other.s
	case TypeBool:
		return d.b == other.b
	}
	return false
}

// Compare orders datums: NULL sorts first, then by type, then by value.
func (d Datum) Compare(other Datum) int {
	switch {
	case d.isNull && other.isNull:
		return 0
	case d.isNull:
		return -1
	case other.isNull:
		return 1
	}
	if d.typ != other.typ {
		if d.typ < other.typ {
			return -1
		}
		return 1
	}
	switch d.typ {
	case TypeInt64:
		switch {
		case d.i < other.i:
			return -1
		case d.i > other.i:
			return 1
		}
	case TypeFloat64:
		switch {
		case d.f < other.f:
			return -1
		case d.f > other.f:
			return 1
		}
	case TypeString:
		return strings.Compare(d.s, other.s)
	case TypeBool:
		switch {
		case !d.b && other.b:
			return -1
		case d.b && !other.b:
			return 1
		}
	}
	return 0
}

// String renders the datum for logs and debugging.
func (d Datum) String() string {
	if d.isNull {
		return "NULL"
	}
	switch d.typ {
	case TypeInt64:
		return strconv.FormatInt(d.i, 10)
	case TypeFloat64:
		return strconv.FormatFloat(d.f, 'g', -1, 64)
	case TypeString:
		return strconv.Quote(d.s)
	case TypeBool:
		return strconv.FormatBool(d.b)
	}
	return "INVALID"
}

// Row is an ordered tuple of datums. Rows are immutable by convention: components
// exchange copies, never aliases, across ownership boundaries.
type Row []Datum

// NewRow builds a row from datums.
func NewRow(datums ...Datum) Row { return Row(datums) }

// Copy returns an independent copy of the row.
func (r Row) Copy() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Concat returns a new row holding r's columns followed by other's.
func (r Row) Concat(other Row) Row {
	out := make(Row, 0, len(r)+len(other))
	out = append(out, r...)
	out = append(out, other...)
	return out
}

// Equal reports column-wise equality.
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if !r[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Compare orders rows lexicographically, shorter rows first on a shared prefix.
func (r Row) Compare(other Row) int {
	n := len(r)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if c := r[i].Compare(other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(r) < len(other):
		return -1
	case len(r) > len(other):
		return 1
	}
	return 0
}

// String renders the row as a parenthesized tuple.
func (r Row) String() string {
	parts := make([]string, len(r))
	for i, d := range r {
		parts[i] = d.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// NullRow returns a row of n NULL datums, used for left-outer NULL extension.
func NullRow(n int) Row {
	out := make(Row, n)
	for i := range out {
		out[i] = Null()
	}
	return out
}

// Column is a named, typed column declaration.
type Column struct {
	Name string
	Type ColumnType
}

// Schema declares the ordered columns of a relation.
type Schema struct {
	Columns []Column
}

// NewSchema builds a schema from column declarations.
func NewSchema(cols ...Column) Schema { return Schema{Columns: cols} }

// Arity returns the number of columns.
func (s Schema) Arity() int { return len(s.Columns) }

// ColumnIndex returns the position of the named column, or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ColumnType returns the declared type of the named column, TypeInvalid if absent.
func (s Schema) ColumnType(name string) ColumnType {
	if i := s.ColumnIndex(name); i >= 0 {
		return s.Columns[i].Type
	}
	return TypeInvalid
}

// Validate checks a row against the schema: exact arity, each non-NULL datum matching
// the declared column type.
func (s Schema) Validate(row Row) error {
	if len(row) != len(s.Columns) {
		return fmt.Errorf("%w: row has %d columns, schema %q declares %d",
			ErrSchemaMismatch, len(row), s.names(), len(s.Columns))
	}
	for i, d := range row {
		if d.IsNull() {
			continue
		}
		if d.Type() != s.Columns[i].Type {
			return fmt.Errorf("%w: column %q expects %s, got %s",
				ErrSchemaMismatch, s.Columns[i].Name, s.Columns[i].Type, d.Type())
		}
	}
	return nil
}

// Concat returns a schema holding s's columns followed by other's.
func (s Schema) Concat(other Schema) Schema {
	cols := make([]Column, 0, len(s.Columns)+len(other.Columns))
	cols = append(cols, s.Columns...)
	cols = append(cols, other.Columns...)
	return Schema{Columns: cols}
}

func (s Schema) names() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.Name
	}
	return strings.Join(parts, ",")
}
