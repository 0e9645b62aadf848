package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/oshokin/make-manifest/internal/config"
	"github.com/oshokin/make-manifest/internal/domain/parcel"
	"github.com/oshokin/make-manifest/internal/lock"
	"github.com/oshokin/make-manifest/internal/logger"
	"github.com/oshokin/make-manifest/internal/metrics"
	"github.com/oshokin/make-manifest/internal/repository/manifest"
	"github.com/oshokin/make-manifest/internal/service/builder"
	"github.com/oshokin/make-manifest/internal/version"
)

// Operation names a manifest operation.
type Operation string

const (
	// OperationCreate builds a new manifest from scratch.
	OperationCreate Operation = "create"
	// OperationUpdate appends entries to an existing manifest.
	OperationUpdate Operation = "update"
	// OperationCleanup removes entries from an existing manifest.
	OperationCleanup Operation = "cleanup"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// Operation selects what to do with the manifest.
	Operation Operation
	// Directory holds the parcels and the manifest.
	Directory string
	// Files are parcel file names relative to Directory.
	Files []string
	// Config carries tunables; nil means defaults.
	Config *config.Config
	// Timestamp becomes lastUpdated; zero means now.
	Timestamp time.Time
	// MetricsFile overrides Config.MetricsFile when set.
	MetricsFile string
}

var (
	// ErrManifestNotFound is returned by update and cleanup when no manifest exists yet.
	ErrManifestNotFound = errors.New("manifest does not exist, run create first")

	errDirectoryIsNotSet = errors.New("parcel directory is not set")
	errNoFiles           = errors.New("at least one parcel file name is required")
	errUnknownOperation  = errors.New("unknown operation")
	errNotDirectory      = errors.New("not a directory")
)

// packager executes one operation against one parcel directory.
type packager struct {
	// op is the requested operation.
	op Operation
	// dir is the parcel directory.
	dir string
	// files are the parcel names given on the command line.
	files []string
	// ts becomes the manifest lastUpdated value.
	ts time.Time
	// builder scans parcels.
	builder *builder.Builder
	// repo reads and writes manifest.json.
	repo manifest.Repository
	// locker guards repo against other processes.
	locker lock.Locker
	// metrics collects run statistics.
	metrics *metrics.Recorder
}

// Run executes the requested manifest operation.
func Run(ctx context.Context, opts *Options) (err error) {
	ctx = logger.WithName(ctx, version.Name)

	pkg, metricsFile, err := newPackager(opts)
	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, pkg.metrics.WriteFile(metricsFile))
	}()

	ctx = logger.WithKV(ctx, "operation", string(pkg.op), "directory", pkg.dir)

	if err = lock.WithLock(ctx, &timedLocker{Locker: pkg.locker, metrics: pkg.metrics}, pkg.run); err != nil {
		return fmt.Errorf("%s manifest: %w", pkg.op, err)
	}

	return nil
}

// newPackager validates opts and wires the collaborators.
func newPackager(opts *Options) (*packager, string, error) {
	if opts.Directory == "" {
		return nil, "", errDirectoryIsNotSet
	}

	switch opts.Operation {
	case OperationCreate, OperationCleanup:
	case OperationUpdate:
		if len(opts.Files) == 0 {
			return nil, "", fmt.Errorf("%s: %w", opts.Operation, errNoFiles)
		}
	default:
		return nil, "", fmt.Errorf("%q: %w", opts.Operation, errUnknownOperation)
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}

	info, err := os.Stat(opts.Directory)
	if err != nil {
		return nil, "", fmt.Errorf("parcel directory: %w", err)
	}

	if !info.IsDir() {
		return nil, "", fmt.Errorf("parcel directory %s: %w", opts.Directory, errNotDirectory)
	}

	metricsFile := opts.MetricsFile
	if metricsFile == "" {
		metricsFile = cfg.MetricsFile
	}

	var recorder *metrics.Recorder
	if metricsFile != "" {
		recorder = metrics.New()
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	pkg := &packager{
		op:      opts.Operation,
		dir:     opts.Directory,
		files:   opts.Files,
		ts:      ts,
		builder: builder.New(builder.WithExtension(cfg.ParcelExtension), builder.WithMetrics(recorder)),
		repo:    manifest.NewFileRepository(cfg.ManifestPath(opts.Directory), config.DefaultFilePermissions),
		locker:  newLocker(cfg, opts.Directory),
		metrics: recorder,
	}

	return pkg, metricsFile, nil
}

// newLocker builds the lock selected by cfg.
func newLocker(cfg *config.Config, dir string) lock.Locker {
	opts := []lock.Option{
		lock.WithTimeout(cfg.LockTimeout),
		lock.WithPollInterval(cfg.PollInterval),
	}

	if cfg.LockStrategy == config.LockStrategyFlock {
		return lock.NewFlock(cfg.LockPath(dir), opts...)
	}

	return lock.New(cfg.LockPath(dir), opts...)
}

// run performs the operation while the lock is held.
func (p *packager) run(ctx context.Context) error {
	var (
		existing *parcel.Manifest
		err      error
	)

	if p.op != OperationCreate {
		if existing, err = p.load(ctx); err != nil {
			return err
		}
	}

	var result *parcel.Manifest

	switch p.op {
	case OperationCleanup:
		result, _, err = p.builder.Cleanup(ctx, p.dir, p.ts, p.files, existing)
	default:
		result, err = p.builder.BuildManifest(ctx, p.dir, p.ts, p.files, existing)
	}

	if err != nil {
		return err
	}

	if err = p.repo.Save(ctx, result); err != nil {
		return err
	}

	p.metrics.ManifestWritten(len(result.Parcels), result.LastUpdated)
	logger.InfoKV(ctx, "Manifest written", "entries", len(result.Parcels), "last_updated", result.LastUpdated)

	return nil
}

// load reads the manifest an update or cleanup starts from.
func (p *packager) load(ctx context.Context) (*parcel.Manifest, error) {
	m, err := p.repo.Load(ctx)
	if errors.Is(err, manifest.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrManifestNotFound, err)
	}

	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Manifest loaded", "entries", len(m.Parcels))

	return m, nil
}

// timedLocker reports the lock wait to the metrics recorder.
type timedLocker struct {
	lock.Locker

	metrics *metrics.Recorder
}

// Acquire waits for the lock and records how long that took.
func (l *timedLocker) Acquire(ctx context.Context) error {
	started := time.Now()

	logger.DebugKV(ctx, "Acquiring manifest lock", "path", l.Path())

	if err := l.Locker.Acquire(ctx); err != nil {
		return err
	}

	waited := time.Since(started)
	l.metrics.LockWaited(waited)
	logger.DebugKV(ctx, "Manifest lock acquired", "waited", waited)

	return nil
}
