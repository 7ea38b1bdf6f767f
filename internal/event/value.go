package event

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

// Supported value kinds.
const (
	KindInvalid Kind = iota
	KindFloat
	KindInt
	KindBool
	KindString
	KindBytes
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "invalid"
	}
}

// Value is an immutable typed scalar.
//
// The zero Value has KindInvalid and is rejected by NewPayload.
type Value struct {
	kind Kind
	num  uint64 // float bits, int bits or bool
	str  string // string or bytes content
}

// Float returns a floating point value.
func Float(f float64) Value {
	return Value{kind: KindFloat, num: math.Float64bits(f)}
}

// Int returns an integer value.
func Int(i int64) Value {
	return Value{kind: KindInt, num: uint64(i)} //nolint:gosec // G115: bit pattern round-trips via AsInt
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Bytes returns a binary value. The slice is copied.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, str: string(b)}
}

// Kind reports the scalar type held by v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a value.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsFloat returns the numeric value as float64.
// Integers are converted; other kinds report ok=false.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.num), true
	case KindInt:
		return float64(int64(v.num)), true //nolint:gosec // G115: see Int
	default:
		return 0, false
	}
}

// AsInt returns the integer value.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return int64(v.num), true //nolint:gosec // G115: see Int
}

// AsBool returns the boolean value.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.num == 1, true
}

// AsString returns the string value.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBytes returns a copy of the binary value.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return []byte(v.str), true
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.num == o.num && v.str == o.str
}

// Interface returns the value as a plain Go value
// (float64, int64, bool, string or []byte).
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		f, _ := v.AsFloat()
		return f
	case KindInt:
		i, _ := v.AsInt()
		return i
	case KindBool:
		b, _ := v.AsBool()
		return b
	case KindString:
		return v.str
	case KindBytes:
		b, _ := v.AsBytes()
		return b
	default:
		return nil
	}
}

// String formats the value for logs and line protocol debugging.
func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case KindInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10)
	case KindBool:
		return strconv.FormatBool(v.num == 1)
	case KindString:
		return v.str
	case KindBytes:
		return base64.StdEncoding.EncodeToString([]byte(v.str))
	default:
		return "<invalid>"
	}
}

// MarshalJSON encodes the value as its natural JSON type.
// Binary values are base64 encoded strings; non-finite floats become null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat:
		f, _ := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(f)
	case KindInt:
		i, _ := v.AsInt()
		return json.Marshal(i)
	case KindBool:
		b, _ := v.AsBool()
		return json.Marshal(b)
	case KindString:
		return json.Marshal(v.str)
	case KindBytes:
		return json.Marshal([]byte(v.str))
	default:
		return []byte("null"), nil
	}
}

// FromAny converts a decoded scalar into a Value.
//
// It accepts the types produced by encoding/json (with UseNumber) and by
// CBOR decoders: json.Number, float32/64, signed and unsigned integers,
// bool, string and []byte. Anything else returns ErrUnsupportedValue.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %w", ErrUnsupportedValue, err)
		}
		return Float(f), nil
	case float64:
		return Float(t), nil
	case float32:
		return Float(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Float(float64(t)), nil
		}
		return Int(int64(t)), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
	}
}

