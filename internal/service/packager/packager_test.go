package packager

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/make-manifest/internal/archive/archivetest"
	"github.com/oshokin/make-manifest/internal/config"
	"github.com/oshokin/make-manifest/internal/domain/parcel"
	"github.com/oshokin/make-manifest/internal/lock"
	"github.com/oshokin/make-manifest/internal/service/builder"
)

const (
	parcelA = "KAFKA-3.4.1-1.p0.1-el8.parcel"
	parcelB = "KAFKA-3.4.1-1.p0.2-el8.parcel"
)

// testConfig returns a configuration with short lock timings.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LockTimeout = 300 * time.Millisecond
	cfg.PollInterval = 20 * time.Millisecond

	return cfg
}

// writeParcel stores a minimal parcel named name in dir.
func writeParcel(t *testing.T, dir, name string) {
	t.Helper()

	root, err := builder.ParcelDirname(name)
	require.NoError(t, err)

	archivetest.WriteParcel(t, dir, name, archivetest.Parcel(root, `{"depends": "", "replaces": "KAFKA"}`, "")...)
}

// readManifest decodes the manifest stored in dir.
func readManifest(t *testing.T, dir string) *parcel.Manifest {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, config.DefaultManifestFilename))
	require.NoError(t, err)

	m, err := parcel.Decode(data)
	require.NoError(t, err)

	return m
}

// TestRun_CreateUpdateCleanup drives all operations against one directory.
func TestRun_CreateUpdateCleanup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeParcel(t, dir, parcelA)

	ctx := context.Background()

	require.NoError(t, Run(ctx, &Options{
		Operation: OperationCreate,
		Directory: dir,
		Config:    testConfig(),
		Timestamp: time.UnixMilli(10),
	}))

	m := readManifest(t, dir)
	require.Equal(t, []string{parcelA}, m.Names())
	require.Equal(t, int64(10), m.LastUpdated)

	writeParcel(t, dir, parcelB)

	require.NoError(t, Run(ctx, &Options{
		Operation: OperationUpdate,
		Directory: dir,
		Files:     []string{parcelB},
		Config:    testConfig(),
		Timestamp: time.UnixMilli(20),
	}))

	m = readManifest(t, dir)
	require.Equal(t, []string{parcelA, parcelB}, m.Names())
	require.Equal(t, int64(20), m.LastUpdated)

	require.NoError(t, os.Remove(filepath.Join(dir, parcelA)))
	require.NoError(t, Run(ctx, &Options{
		Operation: OperationCleanup,
		Directory: dir,
		Config:    testConfig(),
		Timestamp: time.UnixMilli(30),
	}))

	m = readManifest(t, dir)
	require.Equal(t, []string{parcelB}, m.Names())
	require.Equal(t, int64(30), m.LastUpdated)

	_, err := os.Stat(filepath.Join(dir, config.DefaultManifestFilename+".lock"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_UpdateWithoutManifest fails and writes nothing.
func TestRun_UpdateWithoutManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeParcel(t, dir, parcelA)

	for _, op := range []Operation{OperationUpdate, OperationCleanup} {
		err := Run(context.Background(), &Options{
			Operation: op,
			Directory: dir,
			Files:     []string{parcelA},
			Config:    testConfig(),
		})
		require.ErrorIs(t, err, ErrManifestNotFound)
	}

	_, err := os.Stat(filepath.Join(dir, config.DefaultManifestFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_InvalidOptions rejects bad requests before touching the directory.
func TestRun_InvalidOptions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cases := []struct {
		name string
		opts *Options
		want error
	}{
		{name: "no directory", opts: &Options{Operation: OperationCreate}, want: errDirectoryIsNotSet},
		{name: "update without files", opts: &Options{Operation: OperationUpdate, Directory: dir}, want: errNoFiles},
		{name: "unknown operation", opts: &Options{Operation: "delete", Directory: dir}, want: errUnknownOperation},
		{name: "missing directory", opts: &Options{Operation: OperationCreate, Directory: filepath.Join(dir, "absent")}, want: os.ErrNotExist},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.ErrorIs(t, Run(context.Background(), tc.opts), tc.want)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestRun_LockHeld times out while another holder keeps the marker.
func TestRun_LockHeld(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeParcel(t, dir, parcelA)

	cfg := testConfig()
	holder := lock.New(cfg.LockPath(dir))
	require.NoError(t, holder.Acquire(context.Background()))

	defer func() {
		require.NoError(t, holder.Release())
	}()

	err := Run(context.Background(), &Options{Operation: OperationCreate, Directory: dir, Config: cfg})
	require.ErrorIs(t, err, lock.ErrLockTimeout)

	_, err = os.Stat(cfg.ManifestPath(dir))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_FlockStrategy uses the advisory lock implementation.
func TestRun_FlockStrategy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeParcel(t, dir, parcelA)

	cfg := testConfig()
	cfg.LockStrategy = config.LockStrategyFlock

	require.NoError(t, Run(context.Background(), &Options{Operation: OperationCreate, Directory: dir, Config: cfg}))
	require.Equal(t, []string{parcelA}, readManifest(t, dir).Names())
}

// TestRun_MetricsFile writes run metrics next to the manifest.
func TestRun_MetricsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeParcel(t, dir, parcelA)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.parcel"), []byte("x"), 0o644))

	metricsFile := filepath.Join(t.TempDir(), "make_manifest.prom")

	require.NoError(t, Run(context.Background(), &Options{
		Operation:   OperationCreate,
		Directory:   dir,
		Files:       []string{parcelA, "broken.parcel"},
		Config:      testConfig(),
		Timestamp:   time.UnixMilli(7),
		MetricsFile: metricsFile,
	}))

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)

	text := string(data)
	require.True(t, strings.Contains(text, "make_manifest_parcels_scanned_total 1"), text)
	require.True(t, strings.Contains(text, `make_manifest_parcels_skipped_total{reason="invalid_name"} 1`), text)
	require.True(t, strings.Contains(text, "make_manifest_entries 1"), text)
	require.True(t, strings.Contains(text, "make_manifest_last_updated_timestamp_ms 7"), text)
}

// TestRun_CustomManifestName honours the configured manifest file name.
func TestRun_CustomManifestName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeParcel(t, dir, parcelA)

	cfg := testConfig()
	cfg.ManifestFilename = "index.json"

	require.NoError(t, Run(context.Background(), &Options{Operation: OperationCreate, Directory: dir, Config: cfg}))

	_, err := os.Stat(filepath.Join(dir, "index.json"))
	require.NoError(t, err)
}
