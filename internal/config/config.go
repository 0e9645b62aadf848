package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by all manifest operations.
type Config struct {
	// ManifestFilename is the name of the manifest inside the parcel directory.
	ManifestFilename string `yaml:"manifest_filename"`
	// ParcelExtension is the suffix identifying parcel files when no names are given.
	ParcelExtension string `yaml:"parcel_extension"`
	// LockTimeout bounds the time spent waiting for the manifest lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// PollInterval is the delay between two lock acquisition attempts.
	PollInterval time.Duration `yaml:"poll_interval"`
	// LockStrategy selects the lock implementation: marker or flock.
	LockStrategy string `yaml:"lock_strategy"`
	// LogLevel is the minimum level of emitted log messages.
	LogLevel string `yaml:"log_level"`
	// MetricsFile, when set, receives run metrics in Prometheus text format.
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "make-manifest.yaml"

	// DefaultManifestFilename is the file name consumed by repository clients.
	DefaultManifestFilename = "manifest.json"

	// DefaultParcelExtension identifies parcel archives.
	DefaultParcelExtension = ".parcel"

	// DefaultLockTimeout is long on purpose: updates run as slow batch jobs.
	DefaultLockTimeout = 10 * time.Minute

	// DefaultPollInterval is the delay between lock attempts.
	DefaultPollInterval = 5 * time.Second

	// LockStrategyMarker uses an exclusively created marker file.
	LockStrategyMarker = "marker"

	// LockStrategyFlock uses an OS advisory lock on the marker path.
	LockStrategyFlock = "flock"

	// DefaultLogLevel is the level used when nothing is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the permission for files written by the tool.
	DefaultFilePermissions = 0o644
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBadManifestFilename is returned when the manifest name is not a plain file name.
	errBadManifestFilename = errors.New("manifest filename must be a plain file name")
	// errBadPollInterval is returned when the poll interval exceeds the lock timeout.
	errBadPollInterval = errors.New("poll interval must not exceed lock timeout")
	// errUnknownLockStrategy is returned for lock strategies other than marker and flock.
	errUnknownLockStrategy = errors.New("unknown lock strategy")
)

// Default returns a configuration populated with production defaults.
func Default() *Config {
	return &Config{
		ManifestFilename: DefaultManifestFilename,
		ParcelExtension:  DefaultParcelExtension,
		LockTimeout:      DefaultLockTimeout,
		PollInterval:     DefaultPollInterval,
		LockStrategy:     LockStrategyMarker,
		LogLevel:         DefaultLogLevel,
	}
}

// Load reads configuration from the provided path on top of the defaults and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills empty fields with defaults and checks the remaining ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ManifestFilename == "" {
		cfg.ManifestFilename = DefaultManifestFilename
	}

	if filepath.Base(cfg.ManifestFilename) != cfg.ManifestFilename {
		return fmt.Errorf("%q: %w", cfg.ManifestFilename, errBadManifestFilename)
	}

	if cfg.ParcelExtension == "" {
		cfg.ParcelExtension = DefaultParcelExtension
	}

	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.PollInterval > cfg.LockTimeout {
		return fmt.Errorf("%s > %s: %w", cfg.PollInterval, cfg.LockTimeout, errBadPollInterval)
	}

	cfg.LockStrategy = strings.ToLower(strings.TrimSpace(cfg.LockStrategy))
	switch cfg.LockStrategy {
	case "":
		cfg.LockStrategy = LockStrategyMarker
	case LockStrategyMarker, LockStrategyFlock:
	default:
		return fmt.Errorf("%q: %w", cfg.LockStrategy, errUnknownLockStrategy)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return nil
}

// ManifestPath returns the location of the manifest inside dir.
func (c *Config) ManifestPath(dir string) string {
	return filepath.Join(dir, c.ManifestFilename)
}

// LockPath returns the location of the lock marker guarding the manifest inside dir.
func (c *Config) LockPath(dir string) string {
	return c.ManifestPath(dir) + ".lock"
}
