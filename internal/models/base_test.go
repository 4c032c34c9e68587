package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID_Unique(t *testing.T) {
	seen := make(map[ULID]bool)
	for range 1000 {
		id := NewULID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestParseULID(t *testing.T) {
	id := NewULID()

	parsed, err := ParseULID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseULID("not-a-ulid")
	assert.Error(t, err)
}

func TestULID_ScanValue(t *testing.T) {
	id := NewULID()

	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	var fromString ULID
	require.NoError(t, fromString.Scan(id.String()))
	assert.Equal(t, id, fromString)

	var fromBytes ULID
	require.NoError(t, fromBytes.Scan([]byte(id.String())))
	assert.Equal(t, id, fromBytes)

	var empty ULID
	require.NoError(t, empty.Scan(nil))
	assert.True(t, empty.IsZero())

	zero, err := ULID{}.Value()
	require.NoError(t, err)
	assert.Nil(t, zero)

	assert.Error(t, empty.Scan(42))
}

func TestULID_JSON(t *testing.T) {
	id := NewULID()

	data, err := json.Marshal(struct {
		ID ULID `json:"id"`
	}{id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+id.String()+`"}`, string(data))

	var decoded struct {
		ID ULID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded.ID)
}
