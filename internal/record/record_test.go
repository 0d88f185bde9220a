package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidUTF8(t *testing.T) {
	_, err := New([]byte{0xff, 0xfe}, []byte("ok"))
	require.ErrorIs(t, err, ErrBadRecord)
}

func TestNewAllowsAbsentFields(t *testing.T) {
	r, err := New(nil, nil)
	require.NoError(t, err)

	_, ok := r.Key()
	assert.False(t, ok)
	_, ok = r.Value()
	assert.False(t, ok)
}

func TestRecordJSONRoundTrip(t *testing.T) {
	r, err := New([]byte("my_key"), []byte(`{"hello":"world"}`))
	require.NoError(t, err)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"my_key","value":"{\"hello\":\"world\"}"}`, string(out))

	var decoded Record
	require.NoError(t, json.Unmarshal(out, &decoded))

	key, ok := decoded.Key()
	require.True(t, ok)
	assert.Equal(t, "my_key", key)

	value, ok := decoded.Value()
	require.True(t, ok)
	assert.Equal(t, `{"hello":"world"}`, value)
}

func TestRecordJSONNullFields(t *testing.T) {
	r, err := New(nil, []byte("v"))
	require.NoError(t, err)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":null,"value":"v"}`, string(out))
}

func TestMarshalBatchPreservesOrder(t *testing.T) {
	a, err := New([]byte("a"), []byte("1"))
	require.NoError(t, err)
	b, err := New([]byte("b"), []byte("2"))
	require.NoError(t, err)

	out, err := MarshalBatch([]Record{a, b})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"key":"a","value":"1"},{"key":"b","value":"2"}]`, string(out))
}

func TestMarshalEmptyBatch(t *testing.T) {
	out, err := MarshalBatch([]Record{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}
