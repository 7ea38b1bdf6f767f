package event

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one named value of a payload.
type Field struct {
	Name  string
	Value Value
}

// Payload is an ordered mapping from field name to scalar value.
//
// Field names are unique. The zero Payload is empty and valid.
type Payload struct {
	fields []Field
}

// NewPayload builds a payload from fields in the given order.
//
// Returns ErrEmptyFieldName, ErrDuplicateField or ErrUnsupportedValue when a
// field is malformed. The input slice is copied.
func NewPayload(fields ...Field) (Payload, error) {
	seen := make(map[string]struct{}, len(fields))
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return Payload{}, ErrEmptyFieldName
		}
		if !f.Value.IsValid() {
			return Payload{}, fmt.Errorf("%w: field %q", ErrUnsupportedValue, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return Payload{}, fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
		}
		seen[f.Name] = struct{}{}
		out = append(out, f)
	}
	return Payload{fields: out}, nil
}

// MustPayload is NewPayload for literals known to be valid. It panics on error.
func MustPayload(fields ...Field) Payload {
	p, err := NewPayload(fields...)
	if err != nil {
		panic(err)
	}
	return p
}

// Len returns the number of fields.
func (p Payload) Len() int { return len(p.fields) }

// Get returns the value stored under name.
func (p Payload) Get(name string) (Value, bool) {
	for _, f := range p.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Fields returns a copy of the fields in order.
func (p Payload) Fields() []Field {
	out := make([]Field, len(p.fields))
	copy(out, p.fields)
	return out
}

// With returns a new payload with f appended.
// The receiver is left untouched.
func (p Payload) With(f Field) (Payload, error) {
	fields := make([]Field, 0, len(p.fields)+1)
	fields = append(fields, p.fields...)
	fields = append(fields, f)
	return NewPayload(fields...)
}

// Equal reports whether both payloads hold the same fields in the same order.
func (p Payload) Equal(o Payload) bool {
	if len(p.fields) != len(o.fields) {
		return false
	}
	for i := range p.fields {
		if p.fields[i].Name != o.fields[i].Name || !p.fields[i].Value.Equal(o.fields[i].Value) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the payload as a JSON object preserving field order.
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
