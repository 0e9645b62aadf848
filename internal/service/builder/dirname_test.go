package builder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParcelDirname checks the greedy two-trailing-segment split.
func TestParcelDirname(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want string
	}{
		{"CDH-5.0.0-el6.parcel", "CDH-5.0.0"},
		{"CDH-5.0.0-0.cdh5b2.p0.30-precise.parcel", "CDH-5.0.0-0.cdh5b2.p0.30"},
		{"KAFKA-2.1.0-1.2.1.0.p0.9-el7.parcel", "KAFKA-2.1.0-1.2.1.0.p0.9"},
		{"SPARK2-2.4.0.cloudera2-1.cdh5.13.3.p0.1041012-el7.parcel", "SPARK2-2.4.0.cloudera2-1.cdh5.13.3.p0.1041012"},
		{"a-b-c", "a-b"},
		{"a--c", "a-"},
	}

	for _, tc := range cases {
		got, err := ParcelDirname(tc.name)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}
}

// TestParcelDirname_Invalid rejects names with fewer than two hyphens.
func TestParcelDirname_Invalid(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "CDH.parcel", "CDH-5.0.0.parcel", "line\nbreak-a-b"} {
		_, err := ParcelDirname(name)
		require.ErrorIs(t, err, ErrInvalidParcelName, name)
	}
}

// TestMetadataPaths joins archive paths with forward slashes.
func TestMetadataPaths(t *testing.T) {
	t.Parallel()

	meta, notes := metadataPaths("CDH-5.0.0")
	require.Equal(t, "CDH-5.0.0/meta/parcel.json", meta)
	require.Equal(t, "CDH-5.0.0/meta/release-notes.txt", notes)
}
