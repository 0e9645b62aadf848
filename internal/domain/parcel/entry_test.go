package parcel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEntry_SetMetadata accepts only the copied parcel.json keys.
func TestEntry_SetMetadata(t *testing.T) {
	t.Parallel()

	var e Entry

	for _, key := range MetadataKeys {
		require.True(t, e.SetMetadata(key, json.RawMessage(`"`+key+`"`)))
	}

	require.False(t, e.SetMetadata("version", json.RawMessage(`"1.0"`)))
	require.Equal(t, json.RawMessage(`"depends"`), e.Depends)
	require.Equal(t, json.RawMessage(`"replaces"`), e.Replaces)
	require.Equal(t, json.RawMessage(`"conflicts"`), e.Conflicts)
	require.Equal(t, json.RawMessage(`"components"`), e.Components)
}

// TestEntry_MarshalOmitsAbsent ensures unset optional keys are left out entirely.
func TestEntry_MarshalOmitsAbsent(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Entry{ParcelName: "x.parcel", Hash: "00"})
	require.NoError(t, err)
	require.JSONEq(t, `{"parcelName": "x.parcel", "hash": "00"}`, string(data))
}

// TestEntry_CloneIsDeep verifies that a clone shares no memory with its source.
func TestEntry_CloneIsDeep(t *testing.T) {
	t.Parallel()

	var src Entry
	require.NoError(t, json.Unmarshal(
		[]byte(`{"parcelName": "p", "hash": "h", "depends": [1], "releaseNotes": "n", "x": {"y": 1}}`), &src))

	clone := src.Clone()
	require.Equal(t, src, clone)

	clone.Depends[1] = '2'
	*clone.ReleaseNotes = "changed"

	require.Equal(t, json.RawMessage("[1]"), src.Depends)
	require.Equal(t, "n", *src.ReleaseNotes)
}

// TestEntry_DuplicateKeysLastWins mirrors common JSON parser behaviour.
func TestEntry_DuplicateKeysLastWins(t *testing.T) {
	t.Parallel()

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(`{"parcelName": "a", "parcelName": "b", "z": 1, "z": 2}`), &e))
	require.Equal(t, "b", e.ParcelName)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	require.JSONEq(t, `{"parcelName": "b", "hash": "", "z": 2}`, string(data))
}

// TestEntry_KeepsLoadedKeyOrder rewrites a loaded entry with its original key order.
func TestEntry_KeepsLoadedKeyOrder(t *testing.T) {
	t.Parallel()

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(
		`{"hash": "h", "parcelName": "p", "x": 1, "conflicts": "", "components": [], "depends": ""}`), &e))

	notes := "n"
	e.ReleaseNotes = &notes

	data, err := json.Marshal(e)
	require.NoError(t, err)
	require.Equal(t,
		`{"hash":"h","parcelName":"p","x":1,"conflicts":"","components":[],"depends":"","releaseNotes":"n"}`,
		string(data))

	clone := e.Clone()

	cloned, err := json.Marshal(clone)
	require.NoError(t, err)
	require.Equal(t, string(data), string(cloned))
}

// TestEntry_FixedKeyOrder writes new entries in the canonical order.
func TestEntry_FixedKeyOrder(t *testing.T) {
	t.Parallel()

	notes := "n"
	e := Entry{
		ParcelName:   "p",
		Hash:         "h",
		Components:   json.RawMessage(`[]`),
		Conflicts:    json.RawMessage(`""`),
		ReleaseNotes: &notes,
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)
	require.Equal(t, `{"parcelName":"p","hash":"h","conflicts":"","components":[],"releaseNotes":"n"}`, string(data))
}
