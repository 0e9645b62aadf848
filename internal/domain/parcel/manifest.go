package parcel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Manifest keys as they appear in manifest.json.
const (
	KeyParcels     = "parcels"
	KeyLastUpdated = "lastUpdated"
)

// indent is the per-level indentation of an encoded manifest.
const indent = "    "

// ErrInvalidManifest is returned when a document lacks the parcels list.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest is the index of a parcel directory.
type Manifest struct {
	// Parcels lists entries in the order they were merged.
	Parcels []Entry
	// LastUpdated is the time of the last build or update in epoch milliseconds.
	LastUpdated int64

	// extra keeps unknown top-level keys of a manifest loaded from disk.
	extra []field
	// order lists the top-level keys of a manifest loaded from disk.
	order []string
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Parcels: []Entry{},
	}
}

// Decode parses a manifest document.
func Decode(data []byte) (*Manifest, error) {
	m := new(Manifest)
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}

	return m, nil
}

// Clone returns a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	cloned := &Manifest{
		Parcels:     make([]Entry, 0, len(m.Parcels)),
		LastUpdated: m.LastUpdated,
	}

	for i := range m.Parcels {
		cloned.Parcels = append(cloned.Parcels, m.Parcels[i].Clone())
	}

	for _, f := range m.extra {
		cloned.extra = append(cloned.extra, field{key: f.key, value: cloneRaw(f.value)})
	}

	cloned.order = slices.Clone(m.order)

	return cloned
}

// Append adds entries after the existing ones, keeping both orders.
func (m *Manifest) Append(entries ...Entry) {
	m.Parcels = append(m.Parcels, entries...)
}

// Remove drops every entry for which drop returns true and returns the removed entries.
func (m *Manifest) Remove(drop func(Entry) bool) []Entry {
	var removed []Entry

	m.Parcels = slices.DeleteFunc(m.Parcels, func(e Entry) bool {
		if drop(e) {
			removed = append(removed, e)
			return true
		}

		return false
	})

	return removed
}

// Touch sets LastUpdated to ts truncated to milliseconds.
func (m *Manifest) Touch(ts time.Time) {
	m.LastUpdated = ts.UnixMilli()
}

// Names returns the parcel names in manifest order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Parcels))
	for i := range m.Parcels {
		names = append(names, m.Parcels[i].ParcelName)
	}

	return names
}

// Encode renders the manifest with four-space indentation. The output is
// stable, so successive revisions diff cleanly.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)

	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalJSON writes parcels and lastUpdated followed by preserved unknown keys.
// A manifest loaded from disk keeps its top-level key order.
func (m Manifest) MarshalJSON() ([]byte, error) {
	parcels := m.Parcels
	if parcels == nil {
		parcels = []Entry{}
	}

	encodedParcels, err := encodeNoEscape(parcels)
	if err != nil {
		return nil, err
	}

	fields := []field{
		{key: KeyParcels, value: encodedParcels},
		{key: KeyLastUpdated, value: json.RawMessage(strconv.FormatInt(m.LastUpdated, 10))},
	}
	fields = append(fields, m.extra...)

	w := newObjectWriter()
	for _, f := range inOrder(m.order, fields) {
		w.raw(f.key, f.value)
	}

	return w.close(), nil
}

// UnmarshalJSON reads a manifest, keeping top-level keys it does not know about.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	fields, err := readObject(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	*m = Manifest{}

	var hasParcels bool

	for _, f := range fields {
		m.order = append(m.order, f.key)

		switch f.key {
		case KeyParcels:
			hasParcels = true

			if err = json.Unmarshal(f.value, &m.Parcels); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidManifest, KeyParcels, err)
			}
		case KeyLastUpdated:
			if m.LastUpdated, err = decodeMillis(f.value); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidManifest, KeyLastUpdated, err)
			}
		default:
			m.extra = setField(m.extra, f)
		}
	}

	if !hasParcels {
		return fmt.Errorf("%w: missing %q", ErrInvalidManifest, KeyParcels)
	}

	if m.Parcels == nil {
		m.Parcels = []Entry{}
	}

	return nil
}

// decodeMillis accepts integer or fractional millisecond values.
func decodeMillis(raw json.RawMessage) (int64, error) {
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return 0, err
	}

	if ms, err := number.Int64(); err == nil {
		return ms, nil
	}

	ms, err := number.Float64()
	if err != nil {
		return 0, err
	}

	return int64(ms), nil
}
