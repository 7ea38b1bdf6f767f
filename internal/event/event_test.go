package event

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayload(t *testing.T) {
	tests := []struct {
		name    string
		fields  []Field
		wantErr error
	}{
		{name: "empty", fields: nil},
		{
			name: "ordered scalars",
			fields: []Field{
				{Name: "temp", Value: Float(21.5)},
				{Name: "count", Value: Int(3)},
				{Name: "ok", Value: Bool(true)},
			},
		},
		{
			name:    "duplicate name",
			fields:  []Field{{Name: "a", Value: Int(1)}, {Name: "a", Value: Int(2)}},
			wantErr: ErrDuplicateField,
		},
		{
			name:    "empty name",
			fields:  []Field{{Name: "", Value: Int(1)}},
			wantErr: ErrEmptyFieldName,
		},
		{
			name:    "zero value",
			fields:  []Field{{Name: "x"}},
			wantErr: ErrUnsupportedValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPayload(tt.fields...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.fields), p.Len())
			for i, f := range p.Fields() {
				assert.Equal(t, tt.fields[i].Name, f.Name)
			}
		})
	}
}

func TestPayload_Immutable(t *testing.T) {
	raw := []byte{1, 2, 3}
	fields := []Field{{Name: "blob", Value: Bytes(raw)}}
	p := MustPayload(fields...)

	raw[0] = 9
	fields[0].Name = "changed"

	got, ok := p.Get("blob")
	require.True(t, ok)
	b, _ := got.AsBytes()
	assert.Equal(t, []byte{1, 2, 3}, b)

	b[1] = 9
	again, _ := p.Get("blob")
	b2, _ := again.AsBytes()
	assert.Equal(t, []byte{1, 2, 3}, b2)

	out := p.Fields()
	out[0].Name = "mutated"
	_, ok = p.Get("blob")
	assert.True(t, ok)
}

func TestPayload_With(t *testing.T) {
	p := MustPayload(Field{Name: "a", Value: Int(1)})

	q, err := p.With(Field{Name: "b", Value: String("x")})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 2, q.Len())

	_, err = q.With(Field{Name: "a", Value: Int(2)})
	assert.ErrorIs(t, err, ErrDuplicateField)
}

func TestPayload_MarshalJSONKeepsOrder(t *testing.T) {
	p := MustPayload(
		Field{Name: "z", Value: Int(1)},
		Field{Name: "a", Value: Float(2.5)},
		Field{Name: "m", Value: String("hi")},
		Field{Name: "b", Value: Bool(false)},
		Field{Name: "nan", Value: Float(math.NaN())},
	)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":2.5,"m":"hi","b":false,"nan":null}`, string(data))
}

func TestValue_Accessors(t *testing.T) {
	f, ok := Int(7).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)

	_, ok = String("x").AsInt()
	assert.False(t, ok)

	assert.Equal(t, "bytes", Bytes(nil).Kind().String())
	assert.True(t, Float(1).Equal(Float(1)))
	assert.False(t, Float(1).Equal(Int(1)))
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		in   any
		want Value
	}{
		{json.Number("12"), Int(12)},
		{json.Number("1.5"), Float(1.5)},
		{uint64(math.MaxUint64), Float(float64(uint64(math.MaxUint64)))},
		{int32(-4), Int(-4)},
		{true, Bool(true)},
		{"s", String("s")},
		{[]byte("b"), Bytes([]byte("b"))},
	}
	for _, tt := range tests {
		got, err := FromAny(tt.in)
		require.NoError(t, err)
		assert.True(t, tt.want.Equal(got), "FromAny(%v) = %v", tt.in, got)
	}

	_, err := FromAny(map[string]any{})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestEvent_Validate(t *testing.T) {
	now := time.Unix(100, 0)
	tests := []struct {
		name string
		ev   Event
		want error
	}{
		{"valid", Event{DeviceID: "d1", Channel: "temp", Timestamp: now}, nil},
		{"no device", Event{Channel: "temp", Timestamp: now}, ErrEmptyDeviceID},
		{"no channel", Event{DeviceID: "d1", Timestamp: now}, ErrEmptyChannel},
		{"no timestamp", Event{DeviceID: "d1", Channel: "temp"}, ErrZeroTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.ev.Validate(), tt.want)
		})
	}

	assert.Equal(t, Key{DeviceID: "d1", Channel: "temp"}, tests[0].ev.Key())
	assert.Equal(t, "d1/temp", tests[0].ev.Key().String())
}
