package parcel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Entry keys as they appear in manifest.json.
const (
	KeyParcelName   = "parcelName"
	KeyHash         = "hash"
	KeyDepends      = "depends"
	KeyReplaces     = "replaces"
	KeyConflicts    = "conflicts"
	KeyComponents   = "components"
	KeyReleaseNotes = "releaseNotes"
)

// MetadataKeys lists the parcel.json keys copied into an entry when present.
//
//nolint:gochecknoglobals // Read-only lookup table.
var MetadataKeys = []string{KeyDepends, KeyReplaces, KeyConflicts, KeyComponents}

// Entry describes one parcel archive.
type Entry struct {
	// ParcelName is the archive file name.
	ParcelName string
	// Hash is the lowercase hex SHA-1 of the archive bytes.
	Hash string
	// Depends is copied verbatim from parcel.json; nil when absent there.
	Depends json.RawMessage
	// Replaces is copied verbatim from parcel.json; nil when absent there.
	Replaces json.RawMessage
	// Conflicts is copied verbatim from parcel.json; nil when absent there.
	Conflicts json.RawMessage
	// Components is copied verbatim from parcel.json; nil when absent there.
	Components json.RawMessage
	// ReleaseNotes holds meta/release-notes.txt; nil when the archive has none.
	ReleaseNotes *string

	// extra keeps unknown keys of entries loaded from disk, in input order.
	extra []field
	// order lists the keys of an entry loaded from disk as they appeared.
	order []string
}

// field is a single key of a JSON object.
type field struct {
	key   string
	value json.RawMessage
}

// SetMetadata stores a parcel.json value under one of MetadataKeys.
// It reports false for any other key.
func (e *Entry) SetMetadata(key string, value json.RawMessage) bool {
	switch key {
	case KeyDepends:
		e.Depends = value
	case KeyReplaces:
		e.Replaces = value
	case KeyConflicts:
		e.Conflicts = value
	case KeyComponents:
		e.Components = value
	default:
		return false
	}

	return true
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() Entry {
	cloned := Entry{
		ParcelName: e.ParcelName,
		Hash:       e.Hash,
		Depends:    cloneRaw(e.Depends),
		Replaces:   cloneRaw(e.Replaces),
		Conflicts:  cloneRaw(e.Conflicts),
		Components: cloneRaw(e.Components),
	}

	if e.ReleaseNotes != nil {
		notes := *e.ReleaseNotes
		cloned.ReleaseNotes = &notes
	}

	for _, f := range e.extra {
		cloned.extra = append(cloned.extra, field{key: f.key, value: cloneRaw(f.value)})
	}

	cloned.order = slices.Clone(e.order)

	return cloned
}

// MarshalJSON writes the entry keys followed by preserved unknown keys.
// Entries loaded from disk keep their key order; others use a fixed one.
// Optional keys are written only when set.
func (e Entry) MarshalJSON() ([]byte, error) {
	fields := make([]field, 0, len(MetadataKeys)+3+len(e.extra)) //nolint:mnd // Name, hash and notes.

	for _, f := range []struct {
		key   string
		value any
	}{
		{KeyParcelName, e.ParcelName},
		{KeyHash, e.Hash},
	} {
		encoded, err := encodeNoEscape(f.value)
		if err != nil {
			return nil, err
		}

		fields = append(fields, field{key: f.key, value: encoded})
	}

	for _, f := range []field{
		{KeyDepends, e.Depends},
		{KeyReplaces, e.Replaces},
		{KeyConflicts, e.Conflicts},
		{KeyComponents, e.Components},
	} {
		if f.value != nil {
			fields = append(fields, f)
		}
	}

	if e.ReleaseNotes != nil {
		encoded, err := encodeNoEscape(*e.ReleaseNotes)
		if err != nil {
			return nil, err
		}

		fields = append(fields, field{key: KeyReleaseNotes, value: encoded})
	}

	fields = append(fields, e.extra...)

	w := newObjectWriter()
	for _, f := range inOrder(e.order, fields) {
		w.raw(f.key, f.value)
	}

	return w.close(), nil
}

// UnmarshalJSON reads an entry, keeping keys it does not know about.
func (e *Entry) UnmarshalJSON(data []byte) error {
	fields, err := readObject(data)
	if err != nil {
		return fmt.Errorf("decode parcel entry: %w", err)
	}

	*e = Entry{}

	for _, f := range fields {
		e.order = append(e.order, f.key)

		switch f.key {
		case KeyParcelName:
			err = json.Unmarshal(f.value, &e.ParcelName)
		case KeyHash:
			err = json.Unmarshal(f.value, &e.Hash)
		case KeyReleaseNotes:
			var notes string
			if err = json.Unmarshal(f.value, &notes); err == nil {
				e.ReleaseNotes = &notes
			}
		default:
			if !e.SetMetadata(f.key, f.value) {
				e.extra = setField(e.extra, f)
			}
		}

		if err != nil {
			return fmt.Errorf("decode parcel entry %q: %w", f.key, err)
		}
	}

	return nil
}

// readObject splits a JSON object into its keys, preserving order.
// A repeated key keeps its first position and its last value.
func readObject(data []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var fields []field

	for dec.More() {
		if tok, err = dec.Token(); err != nil {
			return nil, err
		}

		key, _ := tok.(string)

		var value json.RawMessage
		if err = dec.Decode(&value); err != nil {
			return nil, err
		}

		fields = setField(fields, field{key: key, value: value})
	}

	if _, err = dec.Token(); err != nil {
		return nil, err
	}

	return fields, nil
}

// setField replaces the value of an existing key or appends a new one.
func setField(fields []field, f field) []field {
	idx := slices.IndexFunc(fields, func(existing field) bool {
		return existing.key == f.key
	})
	if idx >= 0 {
		fields[idx].value = f.value
		return fields
	}

	return append(fields, f)
}

// inOrder returns fields sorted by their position in order. Keys missing
// from order keep their relative position after the listed ones.
func inOrder(order []string, fields []field) []field {
	if len(order) == 0 {
		return fields
	}

	sorted := make([]field, 0, len(fields))
	used := make([]bool, len(fields))

	for _, key := range order {
		idx := slices.IndexFunc(fields, func(f field) bool {
			return f.key == key
		})
		if idx >= 0 && !used[idx] {
			sorted = append(sorted, fields[idx])
			used[idx] = true
		}
	}

	for i, f := range fields {
		if !used[i] {
			sorted = append(sorted, f)
		}
	}

	return sorted
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}

	return append(json.RawMessage(nil), raw...)
}

// objectWriter builds a compact JSON object without HTML escaping.
type objectWriter struct {
	buf   bytes.Buffer
	count int
}

func newObjectWriter() *objectWriter {
	w := new(objectWriter)
	w.buf.WriteByte('{')

	return w
}

func (w *objectWriter) key(key string) {
	if w.count > 0 {
		w.buf.WriteByte(',')
	}

	w.count++

	// Keys are plain identifiers or keys read back from valid JSON.
	encoded, _ := encodeNoEscape(key) //nolint:errcheck // Strings always encode.
	w.buf.Write(encoded)
	w.buf.WriteByte(':')
}

func (w *objectWriter) raw(key string, value json.RawMessage) {
	w.key(key)
	w.buf.Write(value)
}

func (w *objectWriter) close() []byte {
	w.buf.WriteByte('}')

	return w.buf.Bytes()
}

// encodeNoEscape marshals v leaving <, > and & as they are.
func encodeNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
