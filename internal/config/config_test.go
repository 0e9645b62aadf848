package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks defaulting and format validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	// Empty config gets defaults.
	cfg := new(Config)
	require.NoError(t, Validate(cfg))
	require.Equal(t, Default(), cfg)

	// Manifest must be a plain name.
	cfg = &Config{ManifestFilename: "sub/manifest.json"}
	require.ErrorIs(t, Validate(cfg), errBadManifestFilename)

	// Poll interval larger than timeout.
	cfg = &Config{LockTimeout: time.Second, PollInterval: time.Minute}
	require.ErrorIs(t, Validate(cfg), errBadPollInterval)

	// Unknown strategy.
	cfg = &Config{LockStrategy: "etcd"}
	require.ErrorIs(t, Validate(cfg), errUnknownLockStrategy)

	// Strategy is normalized.
	cfg = &Config{LockStrategy: " FLOCK "}
	require.NoError(t, Validate(cfg))
	require.Equal(t, LockStrategyFlock, cfg.LockStrategy)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	cfg := Default()
	cfg.LockTimeout = 90 * time.Second
	cfg.PollInterval = 250 * time.Millisecond
	cfg.MetricsFile = "/var/lib/node_exporter/make_manifest.prom"

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_PartialFileKeepsDefaults verifies that unspecified keys keep their defaults.
func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lock_timeout: 30s\n"), DefaultFilePermissions))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, loaded.LockTimeout)
	require.Equal(t, DefaultPollInterval, loaded.PollInterval)
	require.Equal(t, DefaultManifestFilename, loaded.ManifestFilename)
}

// TestPaths checks manifest and lock locations.
func TestPaths(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.Equal(t, filepath.Join("repo", "manifest.json"), cfg.ManifestPath("repo"))
	require.Equal(t, filepath.Join("repo", "manifest.json.lock"), cfg.LockPath("repo"))
}
