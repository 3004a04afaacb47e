package types

import (
	"encoding/json"
	"fmt"
)

// JSON codec for datums and rows, used by the durable change log. NULL marshals as
// JSON null; typed values carry a one-letter type tag so replay restores the exact
// column type.

type datumJSON struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
}

// MarshalJSON implements json.Marshaler.
func (d Datum) MarshalJSON() ([]byte, error) {
	if d.isNull {
		return []byte("null"), nil
	}
	var tag string
	var val any
	switch d.typ {
	case TypeInt64:
		tag, val = "i", d.i
	case TypeFloat64:
		tag, val = "f", d.f
	case TypeString:
		tag, val = "s", d.s
	case TypeBool:
		tag, val = "b", d.b
	default:
		return nil, fmt.Errorf("cannot marshal datum of invalid type")
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	return json.Marshal(datumJSON{T: tag, V: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Datum) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Null()
		return nil
	}
	var enc datumJSON
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}
	switch enc.T {
	case "i":
		var v int64
		if err := json.Unmarshal(enc.V, &v); err != nil {
			return err
		}
		*d = Int(v)
	case "f":
		var v float64
		if err := json.Unmarshal(enc.V, &v); err != nil {
			return err
		}
		*d = Float(v)
	case "s":
		var v string
		if err := json.Unmarshal(enc.V, &v); err != nil {
			return err
		}
		*d = String_(v)
	case "b":
		var v bool
		if err := json.Unmarshal(enc.V, &v); err != nil {
			return err
		}
		*d = Bool(v)
	default:
		return fmt.Errorf("unknown datum type tag %q", enc.T)
	}
	return nil
}

// MarshalJSON for schemas, used by the change log's DDL records.
func (t ColumnType) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(t))
}

// UnmarshalJSON for schemas.
func (t *ColumnType) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = ColumnType(v)
	return nil
}
