// Package archivetest builds parcel archives for tests.
package archivetest

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/stretchr/testify/require"
)

// File is one tar entry. Entries with Dir set are written as directories.
type File struct {
	Name string
	Body string
	Dir  bool
}

// Tar returns an uncompressed tar stream holding files in order.
func Tar(t *testing.T, files ...File) []byte {
	t.Helper()

	var buf bytes.Buffer

	tw := tar.NewWriter(&buf)

	for _, f := range files {
		header := &tar.Header{
			Name:     f.Name,
			Mode:     0o644,
			Size:     int64(len(f.Body)),
			Typeflag: tar.TypeReg,
		}

		if f.Dir {
			header.Mode = 0o755
			header.Size = 0
			header.Typeflag = tar.TypeDir
		}

		require.NoError(t, tw.WriteHeader(header))

		if !f.Dir {
			_, err := tw.Write([]byte(f.Body))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())

	return buf.Bytes()
}

// Gzip compresses data.
func Gzip(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// Zstd compresses data.
func Zstd(t *testing.T, data []byte) []byte {
	t.Helper()

	zw, err := zstd.NewWriter(nil)
	require.NoError(t, err)

	defer func() {
		_ = zw.Close()
	}()

	return zw.EncodeAll(data, nil)
}

// Xz compresses data.
func Xz(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)

	_, err = xw.Write(data)
	require.NoError(t, err)
	require.NoError(t, xw.Close())

	return buf.Bytes()
}

// Oversized returns a truncated tar stream whose only header announces a
// member of size bytes. Readers that check the size never reach the body.
func Oversized(t *testing.T, name string, size int64) []byte {
	t.Helper()

	var buf bytes.Buffer

	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     size,
		Typeflag: tar.TypeReg,
	}))

	return buf.Bytes()
}

// Parcel returns the members of a well-formed parcel rooted at dirname.
// An empty metadata or notes value leaves the corresponding member out.
func Parcel(dirname, metadata, notes string) []File {
	files := []File{
		{Name: dirname + "/", Dir: true},
		{Name: dirname + "/meta/", Dir: true},
		{Name: dirname + "/lib/hadoop/README", Body: "payload of " + dirname},
	}

	if metadata != "" {
		files = append(files, File{Name: dirname + "/meta/parcel.json", Body: metadata})
	}

	if notes != "" {
		files = append(files, File{Name: dirname + "/meta/release-notes.txt", Body: notes})
	}

	return files
}

// WriteParcel writes a gzip compressed parcel named name into dir and returns its path.
func WriteParcel(t *testing.T, dir, name string, files ...File) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, Gzip(t, Tar(t, files...)), 0o644))

	return path
}
