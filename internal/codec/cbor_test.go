package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"bool", true},
		{"int", int64(-42)},
		{"float", 12.5},
		{"string", "alice"},
		{"list", []any{int64(1), "two", 3.5, false}},
		{"map", map[string]any{"command": "login", "username": "alice", "n": int64(7)}},
		{"nested", map[string]any{
			"origin":   map[string]any{"address": "ep-1", "channel": int64(4000)},
			"accounts": []any{map[string]any{"name": "bob", "online": true}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.in)
			require.NoError(t, err)
			out, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.in, out)
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	a, err := Encode(map[string]any{"b": int64(1), "a": int64(2), "c": "x"})
	require.NoError(t, err)
	b, err := Encode(map[string]any{"c": "x", "a": int64(2), "b": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecode_FailsClosed(t *testing.T) {
	deep := any("leaf")
	for i := 0; i < MaxNesting+2; i++ {
		deep = []any{deep}
	}
	tooDeep, err := Encode(deep)
	require.NoError(t, err)

	good, err := Encode(map[string]any{"a": int64(1)})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"truncated", good[:len(good)-1]},
		{"trailing bytes", append(append([]byte{}, good...), 0x01)},
		{"garbage", []byte{0xff, 0xff, 0x00}},
		{"duplicate keys", []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}},
		{"too deep", tooDeep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestUnmarshal_TypeErrorIsNotMalformed(t *testing.T) {
	raw, err := Encode(map[string]any{"name": int64(5)})
	require.NoError(t, err)

	var dst struct {
		Name string `cbor:"name"`
	}
	err = Unmarshal(raw, &dst)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformed))
	assert.True(t, IsTypeError(err))
}

func TestEncode_InfinitySurvives(t *testing.T) {
	raw, err := Encode(math.Inf(1))
	require.NoError(t, err)
	out, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, math.IsInf(out.(float64), 1))
}
