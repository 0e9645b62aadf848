package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/make-manifest/internal/config"
	"github.com/oshokin/make-manifest/internal/logger"
	"github.com/oshokin/make-manifest/internal/service/packager"
	"github.com/oshokin/make-manifest/internal/version"
)

var (
	// configPath to the optional configuration YAML file.
	configPath string
	// logLevel overrides log_level.
	logLevel string
	// lockTimeout overrides lock_timeout.
	lockTimeout time.Duration
	// pollInterval overrides poll_interval.
	pollInterval time.Duration
	// lockStrategy overrides lock_strategy.
	lockStrategy string
	// metricsFile overrides metrics_file.
	metricsFile string

	// settings is resolved before any operation runs.
	settings *config.Config

	// rootCmd represents the base command for maintaining parcel manifests.
	rootCmd = &cobra.Command{
		Use:               version.Name,
		Short:             "Build and update manifest.json of a parcel repository",
		SilenceUsage:      true,
		PersistentPreRunE: resolveSettings,
	}

	createCmd = &cobra.Command{
		Use:   "create <directory> [fileName ...]",
		Short: "Write a new manifest for the named parcels, or for every parcel of the directory",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runOperation(packager.OperationCreate),
	}

	updateCmd = &cobra.Command{
		Use:   "update <directory> <fileName> [fileName ...]",
		Short: "Append the named parcels to an existing manifest",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd // Directory and at least one parcel.
		RunE:  runOperation(packager.OperationUpdate),
	}

	cleanupCmd = &cobra.Command{
		Use:   "cleanup <directory> [fileName ...]",
		Short: "Drop the named parcels, or parcels whose files are gone, from an existing manifest",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runOperation(packager.OperationCleanup),
	}
)

// Execute runs the make-manifest CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runOperation returns the handler of an operation subcommand.
func runOperation(op packager.Operation) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		// Interrupting the lock wait must not leave a marker behind.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &packager.Options{
			Operation: op,
			Directory: args[0],
			Files:     args[1:],
			Config:    settings,
		}

		return packager.Run(ctx, options)
	}
}

// resolveSettings loads the configuration file when given and applies flag overrides.
func resolveSettings(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()

	if cmd.Flags().Changed("config") {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}

		cfg = loaded
	}

	flags := cmd.Flags()

	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if flags.Changed("lock-timeout") {
		cfg.LockTimeout = lockTimeout
	}

	if flags.Changed("poll-interval") {
		cfg.PollInterval = pollInterval
	}

	if flags.Changed("lock-strategy") {
		cfg.LockStrategy = lockStrategy
	}

	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}

	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	logger.SetLevel(level)

	settings = cfg

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()

	// Setup command flags with consistent naming and descriptions.
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn or error")
	flags.DurationVar(&lockTimeout, "lock-timeout", config.DefaultLockTimeout, "maximum time to wait for the manifest lock")
	flags.DurationVar(&pollInterval, "poll-interval", config.DefaultPollInterval, "delay between lock attempts")
	flags.StringVar(&lockStrategy, "lock-strategy", config.LockStrategyMarker, "lock implementation: marker or flock")
	flags.StringVar(&metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")

	rootCmd.AddCommand(createCmd, updateCmd, cleanupCmd)
}
