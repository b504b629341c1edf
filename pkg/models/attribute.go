package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// AttrKind discriminates the value stored in an AttrValue.
type AttrKind int

const (
	AttrNull AttrKind = iota
	AttrString
	AttrInt
	AttrFloat
	AttrBool
)

// AttrValue is a log/span attribute value. It is a closed union over the
// primitive types the query layer knows how to compare; richer structured
// values from ingestion protocols are flattened or stringified before they
// reach this type.
type AttrValue struct {
	Kind  AttrKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

// StringValue returns an AttrValue holding a string.
func StringValue(s string) AttrValue {
	return AttrValue{Kind: AttrString, Str: s}
}

// IntValue returns an AttrValue holding an int64.
func IntValue(i int64) AttrValue {
	return AttrValue{Kind: AttrInt, Int: i}
}

// FloatValue returns an AttrValue holding a float64.
func FloatValue(f float64) AttrValue {
	return AttrValue{Kind: AttrFloat, Float: f}
}

// BoolValue returns an AttrValue holding a bool.
func BoolValue(b bool) AttrValue {
	return AttrValue{Kind: AttrBool, Bool: b}
}

// NullValue returns the null AttrValue.
func NullValue() AttrValue {
	return AttrValue{Kind: AttrNull}
}

// String renders the value for display and for storage backends that
// persist attributes as text.
func (v AttrValue) String() string {
	switch v.Kind {
	case AttrString:
		return v.Str
	case AttrInt:
		return strconv.FormatInt(v.Int, 10)
	case AttrFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case AttrBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its natural JSON type.
func (v AttrValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case AttrString:
		return json.Marshal(v.Str)
	case AttrInt:
		return json.Marshal(v.Int)
	case AttrFloat:
		return json.Marshal(v.Float)
	case AttrBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar into the matching union member.
// Whole numbers decode as ints, any other numeric as float.
func (v *AttrValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch val := raw.(type) {
	case nil:
		*v = NullValue()
	case string:
		*v = StringValue(val)
	case bool:
		*v = BoolValue(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			*v = IntValue(i)
			return nil
		}
		f, err := val.Float64()
		if err != nil {
			return fmt.Errorf("attribute value %q is not a number", val.String())
		}
		*v = FloatValue(f)
	default:
		return fmt.Errorf("attribute value must be a scalar, got %T", raw)
	}
	return nil
}
