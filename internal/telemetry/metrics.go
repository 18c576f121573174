package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// LibraryMetricsMeterName is the name used for the library metrics meter
	LibraryMetricsMeterName = "github.com/zimshelf/zim-library/library"

	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/zimshelf/zim-library/sync"
)

// LibraryMetrics holds the OpenTelemetry instruments for the package store
type LibraryMetrics struct {
	packagesTotal metric.Int64Gauge
}

// NewLibraryMetrics creates a new LibraryMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewLibraryMetrics(provider metric.MeterProvider) (*LibraryMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(LibraryMetricsMeterName)

	packagesTotal, err := meter.Int64Gauge(
		"zim_library_packages_total",
		metric.WithDescription("Number of valid catalog entries seen by the last successful sync"),
		metric.WithUnit("{package}"),
	)
	if err != nil {
		return nil, err
	}

	return &LibraryMetrics{
		packagesTotal: packagesTotal,
	}, nil
}

// RecordPackagesTotal records the number of packages in the store
func (m *LibraryMetrics) RecordPackagesTotal(ctx context.Context, count int64) {
	if m == nil || m.packagesTotal == nil {
		return
	}
	m.packagesTotal.Record(ctx, count)
}

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	syncDuration metric.Float64Histogram
	syncTotal    metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"zim_library_sync_duration_seconds",
		metric.WithDescription("Duration of catalog sync jobs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	syncTotal, err := meter.Int64Counter(
		"zim_library_sync_total",
		metric.WithDescription("Completed catalog sync jobs by outcome"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration: syncDuration,
		syncTotal:    syncTotal,
	}, nil
}

// RecordSync records one finished job. outcome is new_data, no_data or
// failed; preserveExisting distinguishes background from user refreshes.
func (m *SyncMetrics) RecordSync(
	ctx context.Context, duration time.Duration, outcome string, preserveExisting bool,
) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("preserve_existing", preserveExisting),
	)

	if m.syncDuration != nil {
		m.syncDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if m.syncTotal != nil {
		m.syncTotal.Add(ctx, 1, attrs)
	}
}
