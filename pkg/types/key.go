package types

import (
	"encoding/json"
	"fmt"
)

// Canonical keys give identity to rows and datums in map-backed structures. Rows are
// not directly comparable (Row is a slice), so a deterministic JSON rendering of the
// typed values serves as the map key, the same way documents are keyed in multiset
// stores.

// KeyError wraps canonicalization failures.
type KeyError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func newKeyError(message string, cause error) error {
	return &KeyError{Message: message, Cause: cause}
}

// RowKey computes the canonical key of a row.
func RowKey(row Row) (string, error) {
	canonical := make([]any, len(row))
	for i, d := range row {
		canonical[i] = datumCanonical(d)
	}
	bytes, err := json.Marshal(canonical)
	if err != nil {
		return "", newKeyError("failed to marshal row to canonical form", err)
	}
	return string(bytes), nil
}

// DatumKey computes the canonical key of a single datum, used for join and primary
// keys.
func DatumKey(d Datum) (string, error) {
	bytes, err := json.Marshal(datumCanonical(d))
	if err != nil {
		return "", newKeyError("failed to marshal datum to canonical form", err)
	}
	return string(bytes), nil
}

// datumCanonical renders a datum as a two-element [type, value] pair so values of
// different types never collide (1 vs 1.0 vs "1").
func datumCanonical(d Datum) any {
	if d.IsNull() {
		return nil
	}
	switch d.Type() {
	case TypeInt64:
		return []any{"i", d.Int64()}
	case TypeFloat64:
		return []any{"f", d.Float64()}
	case TypeString:
		return []any{"s", d.Str()}
	case TypeBool:
		return []any{"b", d.Boolean()}
	}
	return nil
}
