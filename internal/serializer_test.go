package internal_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pitabwire/tracker/internal"
)

type roiPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func TestMarshal(t *testing.T) {
	testCases := []struct {
		name     string
		input    any
		expected []byte
	}{
		{
			name:     "nil input returns null",
			input:    nil,
			expected: []byte("null"),
		},
		{
			name:     "byte slice passes through",
			input:    []byte("frame"),
			expected: []byte("frame"),
		},
		{
			name:     "raw json passes through",
			input:    json.RawMessage(`{"x":1}`),
			expected: []byte(`{"x":1}`),
		},
		{
			name:     "string is converted",
			input:    "radialcenter",
			expected: []byte("radialcenter"),
		},
		{
			name:     "struct falls back to json",
			input:    roiPoint{X: 1.5, Y: 2},
			expected: []byte(`{"x":1.5,"y":2}`),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := internal.Marshal(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
		})
	}
}

func TestMarshalProtobuf(t *testing.T) {
	msg, err := structpb.NewStruct(map[string]any{"x": 3.0})
	require.NoError(t, err)

	out, err := internal.Marshal(msg)
	require.NoError(t, err)

	expected, err := proto.Marshal(msg)
	require.NoError(t, err)
	assert.Equal(t, expected, out)

	decoded := &structpb.Struct{}
	require.NoError(t, internal.Unmarshal(out, decoded))
	assert.InDelta(t, 3.0, decoded.GetFields()["x"].GetNumberValue(), 1e-9)
}

func TestUnmarshalHolders(t *testing.T) {
	var raw []byte
	require.NoError(t, internal.Unmarshal([]byte("abc"), &raw))
	assert.Equal(t, []byte("abc"), raw)

	var text string
	require.NoError(t, internal.Unmarshal([]byte("abc"), &text))
	assert.Equal(t, "abc", text)

	var point roiPoint
	require.NoError(t, internal.Unmarshal([]byte(`{"x":4,"y":5}`), &point))
	assert.Equal(t, roiPoint{X: 4, Y: 5}, point)

	require.ErrorIs(t, internal.Unmarshal([]byte("x"), nil), internal.ErrNilHolder)
	require.Error(t, internal.Unmarshal([]byte("{"), &point))
}
