package manifest

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/make-manifest/internal/domain/parcel"

	// Ensure SHA1 is available for write verification.
	_ "crypto/sha1"
)

// Repository defines persistence operations for the manifest.
type Repository interface {
	Load(ctx context.Context) (*parcel.Manifest, error)
	Save(ctx context.Context, m *parcel.Manifest) error
}

// FileRepository persists the manifest to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of manifest.json.
	path string
	// mode is the permission of a newly written manifest.
	mode os.FileMode
}

var _ Repository = (*FileRepository)(nil)

const (
	// DefaultFileMode is the permission of manifest.json.
	DefaultFileMode os.FileMode = 0o644

	// checksumFunction verifies the bytes swapped in by Save.
	checksumFunction = crypto.SHA1
)

// ErrNotFound is returned when the manifest file does not exist yet.
var ErrNotFound = errors.New("manifest not found")

// NewFileRepository creates a repository that reads and writes the manifest at path.
func NewFileRepository(path string, mode os.FileMode) *FileRepository {
	if mode == 0 {
		mode = DefaultFileMode
	}

	return &FileRepository{
		path: filepath.Clean(path),
		mode: mode,
	}
}

// Path returns the manifest location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads and decodes the manifest.
func (r *FileRepository) Load(_ context.Context) (*parcel.Manifest, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", r.path, ErrNotFound)
		}

		return nil, fmt.Errorf("read manifest: %w", err)
	}

	m, err := parcel.Decode(contents)
	if err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", r.path, err)
	}

	return m, nil
}

// Save encodes the manifest and swaps it in place of the current file.
// Readers see either the previous or the new document, never a partial one.
func (r *FileRepository) Save(_ context.Context, m *parcel.Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}

	// go-update renames the current file aside, so one has to exist.
	created, err := r.ensureTarget()
	if err != nil {
		return err
	}

	hasher := checksumFunction.New()
	_, _ = hasher.Write(data)

	options := goupdate.Options{
		TargetPath: r.path,
		TargetMode: r.mode,
		Checksum:   hasher.Sum(nil),
		Hash:       checksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		if created {
			_ = os.Remove(r.path)
		}

		return fmt.Errorf("write manifest %s: %w", r.path, err)
	}

	return nil
}

// ensureTarget creates an empty placeholder when the manifest does not exist
// and reports whether it did so.
func (r *FileRepository) ensureTarget() (bool, error) {
	_, err := os.Stat(r.path)
	if err == nil {
		return false, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat manifest: %w", err)
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, r.mode)
	if err != nil {
		return false, fmt.Errorf("create manifest: %w", err)
	}

	if err = f.Close(); err != nil {
		return true, fmt.Errorf("create manifest: %w", err)
	}

	return true, nil
}
