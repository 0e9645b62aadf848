package builder

import (
	"context"
	"crypto"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/make-manifest/internal/archive"
	"github.com/oshokin/make-manifest/internal/domain/parcel"
	"github.com/oshokin/make-manifest/internal/logger"
	"github.com/oshokin/make-manifest/internal/metrics"

	// Ensure SHA1 is available for parcel fingerprints.
	_ "crypto/sha1"
)

// DefaultExtension identifies parcel files when no names are given.
const DefaultExtension = ".parcel"

// HashFunction fingerprints parcel archives. Repository clients compare
// against it, so it is not a security boundary.
const HashFunction = crypto.SHA1

var (
	// ErrMemberMissing is returned when a parcel has no meta/parcel.json.
	ErrMemberMissing = errors.New("parcel does not contain parcel.json")
	// ErrMetadataParse is returned when parcel.json or the release notes cannot be decoded.
	ErrMetadataParse = errors.New("failed to parse parcel metadata")

	errNotRegularFile = errors.New("not a regular file")
)

// Builder scans parcel archives.
type Builder struct {
	// extension selects parcel files when a directory is scanned.
	extension string
	// metrics receives per-parcel outcomes; nil discards them.
	metrics *metrics.Recorder
}

// Option configures a Builder.
type Option func(*Builder)

// WithExtension changes the parcel file extension.
func WithExtension(extension string) Option {
	return func(b *Builder) {
		if extension != "" {
			b.extension = extension
		}
	}
}

// WithMetrics reports scan outcomes to r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(b *Builder) {
		b.metrics = r
	}
}

// New creates a Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		extension: DefaultExtension,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// IsRecoverable reports whether err only disqualifies a single parcel.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInvalidParcelName) ||
		errors.Is(err, ErrMemberMissing) ||
		errors.Is(err, ErrMetadataParse)
}

// ListParcels returns the names of the parcel files in dir, sorted.
func (b *Builder) ListParcels(dir string) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}

	names := make([]string, 0, len(items))

	for _, item := range items {
		if item.IsDir() || !strings.HasSuffix(item.Name(), b.extension) {
			continue
		}

		names = append(names, item.Name())
	}

	return names, nil
}

// BuildManifest scans fileNames in dir (every parcel of dir when empty) and
// returns existing with the new entries appended and lastUpdated set to ts.
// A nil existing manifest starts from an empty one; existing is not modified.
func (b *Builder) BuildManifest(
	ctx context.Context,
	dir string,
	ts time.Time,
	fileNames []string,
	existing *parcel.Manifest,
) (*parcel.Manifest, error) {
	var err error

	if len(fileNames) == 0 {
		if fileNames, err = b.ListParcels(dir); err != nil {
			return nil, err
		}
	}

	result := parcel.NewManifest()
	if existing != nil {
		result = existing.Clone()
	}

	entries, err := b.BuildEntries(ctx, dir, fileNames)
	if err != nil {
		return nil, err
	}

	result.Append(entries...)
	result.Touch(ts)

	return result, nil
}

// BuildEntries creates one entry per usable parcel, in the order of fileNames.
// Parcels with an unusable name or metadata are logged and skipped; any
// other error aborts the scan.
func (b *Builder) BuildEntries(ctx context.Context, dir string, fileNames []string) ([]parcel.Entry, error) {
	entries := make([]parcel.Entry, 0, len(fileNames))

	for _, name := range fileNames {
		entry, err := b.buildEntry(logger.WithKV(ctx, "parcel", name), filepath.Join(dir, name), name)
		if err == nil {
			b.metrics.ParcelScanned()

			entries = append(entries, entry)

			continue
		}

		if !IsRecoverable(err) {
			return nil, err
		}

		logger.WarnKV(ctx, "Skipping parcel", "parcel", name, "reason", err)
		b.metrics.ParcelSkipped(skipReason(err))
	}

	return entries, nil
}

// buildEntry reads a single parcel file.
func (b *Builder) buildEntry(ctx context.Context, fullPath, name string) (parcel.Entry, error) {
	f, err := os.Open(filepath.Clean(fullPath))
	if err != nil {
		return parcel.Entry{}, fmt.Errorf("open parcel: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return parcel.Entry{}, fmt.Errorf("stat parcel: %w", err)
	}

	if !info.Mode().IsRegular() {
		return parcel.Entry{}, &fs.PathError{Op: "open parcel", Path: fullPath, Err: errNotRegularFile}
	}

	logger.InfoKV(ctx, "Found parcel", "size", humanize.Bytes(uint64(info.Size()))) //nolint:gosec // Size of a regular file.

	dirname, err := ParcelDirname(name)
	if err != nil {
		return parcel.Entry{}, err
	}

	metaPath, notesPath := metadataPaths(dirname)

	// The archive is read once; every byte passes through the hasher.
	hasher := HashFunction.New()
	stream := io.TeeReader(f, hasher)

	members, err := archive.Lookup(stream, metaPath, notesPath)
	if errors.Is(err, archive.ErrMemberTooLarge) {
		return parcel.Entry{}, fmt.Errorf("%w: %w", ErrMetadataParse, err)
	}

	if err != nil {
		return parcel.Entry{}, fmt.Errorf("read parcel %s: %w", fullPath, err)
	}

	if _, err = io.Copy(io.Discard, stream); err != nil {
		return parcel.Entry{}, fmt.Errorf("read parcel %s: %w", fullPath, err)
	}

	entry := parcel.Entry{
		ParcelName: name,
		Hash:       hex.EncodeToString(hasher.Sum(nil)),
	}

	if err = copyMetadata(&entry, members[metaPath]); err != nil {
		return parcel.Entry{}, err
	}

	if err = copyReleaseNotes(ctx, &entry, members[notesPath]); err != nil {
		return parcel.Entry{}, err
	}

	logger.DebugKV(ctx, "Parcel scanned", "hash", entry.Hash, "release_notes", entry.ReleaseNotes != nil)

	return entry, nil
}

// copyMetadata copies the metadata keys present in parcel.json into entry.
func copyMetadata(entry *parcel.Entry, member *archive.Member) error {
	if member == nil {
		return ErrMemberMissing
	}

	if !member.Regular {
		return fmt.Errorf("%w: %s is not a regular file", ErrMetadataParse, member.Name)
	}

	if !utf8.Valid(member.Data) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrMetadataParse, member.Name)
	}

	var document map[string]json.RawMessage
	if err := json.Unmarshal(member.Data, &document); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMetadataParse, member.Name, err)
	}

	if document == nil {
		return fmt.Errorf("%w: %s is not a JSON object", ErrMetadataParse, member.Name)
	}

	for _, key := range parcel.MetadataKeys {
		if value, ok := document[key]; ok {
			entry.SetMetadata(key, value)
		}
	}

	return nil
}

// copyReleaseNotes stores the release notes text when the archive has one.
func copyReleaseNotes(ctx context.Context, entry *parcel.Entry, member *archive.Member) error {
	if member == nil {
		return nil
	}

	if !member.Regular {
		logger.WarnKV(ctx, "Ignoring release notes that are not a regular file", "member", member.Name)
		return nil
	}

	if !utf8.Valid(member.Data) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrMetadataParse, member.Name)
	}

	notes := string(member.Data)
	entry.ReleaseNotes = &notes

	return nil
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParcelName):
		return metrics.ReasonInvalidName
	case errors.Is(err, ErrMemberMissing):
		return metrics.ReasonMissingMetadata
	default:
		return metrics.ReasonBadMetadata
	}
}
