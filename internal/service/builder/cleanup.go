package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/oshokin/make-manifest/internal/domain/parcel"
	"github.com/oshokin/make-manifest/internal/logger"
)

// Cleanup returns a copy of existing without stale entries and with
// lastUpdated set to ts. When fileNames is empty, entries whose parcel file
// is gone from dir are stale; otherwise the entries named in fileNames are.
// The remaining entries keep their order.
func (b *Builder) Cleanup(
	ctx context.Context,
	dir string,
	ts time.Time,
	fileNames []string,
	existing *parcel.Manifest,
) (*parcel.Manifest, []parcel.Entry, error) {
	result := parcel.NewManifest()
	if existing != nil {
		result = existing.Clone()
	}

	stale, err := staleNames(dir, fileNames, result)
	if err != nil {
		return nil, nil, err
	}

	removed := result.Remove(func(e parcel.Entry) bool {
		_, ok := stale[e.ParcelName]
		return ok
	})

	for i := range removed {
		logger.InfoKV(ctx, "Removing parcel from manifest", "parcel", removed[i].ParcelName)
	}

	b.metrics.EntriesRemoved(len(removed))
	result.Touch(ts)

	return result, removed, nil
}

// staleNames returns the set of parcel names to drop from m.
func staleNames(dir string, fileNames []string, m *parcel.Manifest) (map[string]struct{}, error) {
	stale := make(map[string]struct{}, len(fileNames))

	if len(fileNames) > 0 {
		for _, name := range fileNames {
			stale[name] = struct{}{}
		}

		return stale, nil
	}

	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("stat parcel directory: %w", err)
	}

	for _, name := range m.Names() {
		_, err := os.Stat(filepath.Join(dir, name))

		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			stale[name] = struct{}{}
		default:
			return nil, fmt.Errorf("stat parcel: %w", err)
		}
	}

	return stale, nil
}
