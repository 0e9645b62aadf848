package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// MaxMemberSize caps the size of a member read into memory.
const MaxMemberSize = 64 << 20

// Compression identifies the outer encoding of a tar stream.
type Compression string

// Supported compressions.
const (
	CompressionNone  Compression = "none"
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bzip2"
	CompressionZstd  Compression = "zstd"
	CompressionXz    Compression = "xz"
)

// ErrMemberTooLarge is returned when a requested member exceeds MaxMemberSize.
var ErrMemberTooLarge = errors.New("archive member too large")

//nolint:gochecknoglobals // Read-only magic number table.
var magics = []struct {
	compression Compression
	prefix      []byte
}{
	{CompressionGzip, []byte{0x1f, 0x8b}},
	{CompressionBzip2, []byte("BZh")},
	{CompressionZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{CompressionXz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
}

// Member is a tar entry whose name was requested.
type Member struct {
	// Name is the name as stored in the archive.
	Name string
	// Regular is false for directories, links and other special entries.
	Regular bool
	// Data holds the content of regular members.
	Data []byte
}

// Detect peeks at the stream head and reports its compression.
func Detect(r *bufio.Reader) Compression {
	for _, m := range magics {
		head, err := r.Peek(len(m.prefix))
		if err == nil && bytes.Equal(head, m.prefix) {
			return m.compression
		}
	}

	return CompressionNone
}

// Lookup scans the whole archive read from r and returns the requested
// members keyed by the requested name. Names match exactly, ignoring a
// trailing slash; when an archive holds a name twice the last copy wins.
// Names missing from the archive are missing from the result.
func Lookup(r io.Reader, names ...string) (map[string]*Member, error) {
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[normalize(name)] = struct{}{}
	}

	stream, closeStream, err := decompress(r)
	if err != nil {
		return nil, err
	}

	defer closeStream()

	var (
		tr    = tar.NewReader(stream)
		found = make(map[string]*Member, len(names))
	)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}

		key := normalize(header.Name)
		if _, ok := wanted[key]; !ok {
			continue
		}

		member := &Member{
			Name:    header.Name,
			Regular: header.Typeflag == tar.TypeReg,
		}

		if member.Regular {
			if member.Data, err = readMember(tr, header); err != nil {
				return nil, err
			}
		}

		found[key] = member
	}

	return found, nil
}

// decompress wraps r with the decoder matching its magic bytes.
func decompress(r io.Reader) (io.Reader, func(), error) {
	buffered := bufio.NewReader(r)
	noop := func() {}

	switch Detect(buffered) {
	case CompressionGzip:
		zr, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, noop, fmt.Errorf("open gzip stream: %w", err)
		}

		return zr, func() { _ = zr.Close() }, nil
	case CompressionBzip2:
		return bzip2.NewReader(buffered), noop, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, noop, fmt.Errorf("open zstd stream: %w", err)
		}

		return zr, zr.Close, nil
	case CompressionXz:
		xr, err := xz.NewReader(buffered)
		if err != nil {
			return nil, noop, fmt.Errorf("open xz stream: %w", err)
		}

		return xr, noop, nil
	default:
		return buffered, noop, nil
	}
}

func readMember(tr *tar.Reader, header *tar.Header) ([]byte, error) {
	if header.Size > MaxMemberSize {
		return nil, fmt.Errorf("%s (%d bytes): %w", header.Name, header.Size, ErrMemberTooLarge)
	}

	data, err := io.ReadAll(tr)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", header.Name, err)
	}

	return data, nil
}

func normalize(name string) string {
	return strings.TrimRight(name, "/")
}
