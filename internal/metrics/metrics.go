// Package metrics records what a manifest run did and exports it in the
// Prometheus text format, for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons used as the reason label of parcels_skipped_total.
const (
	ReasonInvalidName     = "invalid_name"
	ReasonMissingMetadata = "missing_metadata"
	ReasonBadMetadata     = "bad_metadata"
)

// Recorder holds the metrics of one run. A nil Recorder discards everything.
type Recorder struct {
	registry    *prometheus.Registry
	scanned     prometheus.Counter
	skipped     *prometheus.CounterVec
	removed     prometheus.Counter
	entries     prometheus.Gauge
	lastUpdated prometheus.Gauge
	lockWait    prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		scanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "make_manifest_parcels_scanned_total",
			Help: "Parcels turned into manifest entries.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "make_manifest_parcels_skipped_total",
			Help: "Parcels left out of the manifest, by reason.",
		}, []string{"reason"}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "make_manifest_entries_removed_total",
			Help: "Entries dropped by cleanup.",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "make_manifest_entries",
			Help: "Entries in the manifest after the last write.",
		}),
		lastUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "make_manifest_last_updated_timestamp_ms",
			Help: "lastUpdated value of the last written manifest.",
		}),
		lockWait: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "make_manifest_lock_wait_seconds",
			Help: "Time spent waiting for the manifest lock.",
		}),
	}

	r.registry.MustRegister(r.scanned, r.skipped, r.removed, r.entries, r.lastUpdated, r.lockWait)

	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

// ParcelScanned counts a parcel that produced an entry.
func (r *Recorder) ParcelScanned() {
	if r == nil {
		return
	}

	r.scanned.Inc()
}

// ParcelSkipped counts a parcel left out for reason.
func (r *Recorder) ParcelSkipped(reason string) {
	if r == nil {
		return
	}

	r.skipped.WithLabelValues(reason).Inc()
}

// EntriesRemoved counts entries dropped by cleanup.
func (r *Recorder) EntriesRemoved(n int) {
	if r == nil {
		return
	}

	r.removed.Add(float64(n))
}

// ManifestWritten records the size and timestamp of the saved manifest.
func (r *Recorder) ManifestWritten(entries int, lastUpdated int64) {
	if r == nil {
		return
	}

	r.entries.Set(float64(entries))
	r.lastUpdated.Set(float64(lastUpdated))
}

// LockWaited records how long acquiring the lock took.
func (r *Recorder) LockWaited(d time.Duration) {
	if r == nil {
		return
	}

	r.lockWait.Set(d.Seconds())
}

// WriteFile atomically writes all metrics to path in the text exposition format.
func (r *Recorder) WriteFile(path string) error {
	if r == nil || path == "" {
		return nil
	}

	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	return nil
}
