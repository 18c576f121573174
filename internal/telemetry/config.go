// Package telemetry wires OpenTelemetry for the library service: spans around
// HTTP requests and sync jobs, and metrics for syncs, the package count and the
// API. Traces are pushed over OTLP; metrics are pushed over OTLP, served for
// Prometheus scraping, or both.
package telemetry

import (
	"errors"
	"fmt"

	"github.com/zimshelf/zim-library/internal/versions"
)

const (
	// DefaultServiceName identifies the service when none is configured
	DefaultServiceName = "zim-library"

	// DefaultEndpoint is the OTLP/HTTP collector (host:port)
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling samples 5% of traces
	DefaultSampling = 0.05
)

// Metrics exporters
const (
	// MetricsExporterOTLP pushes metrics to the OTLP endpoint
	MetricsExporterOTLP = "otlp"
	// MetricsExporterPrometheus serves metrics on the /metrics scrape endpoint
	MetricsExporterPrometheus = "prometheus"
	// MetricsExporterBoth enables the OTLP push and the scrape endpoint
	MetricsExporterBoth = "both"
)

// Config is the telemetry section of the service configuration. Nothing is
// exported unless Enabled is set along with Tracing or Metrics.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// ServiceName defaults to zim-library
	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion defaults to the build version
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP/HTTP collector as host:port. The exporters append
	// /v1/traces and /v1/metrics themselves.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure sends OTLP over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of traces kept, in [0, 1]. Zero means DefaultSampling.
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls metric export
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter selects otlp, prometheus or both. Defaults to otlp
	Exporter string `yaml:"exporter,omitempty"`
}

// GetServiceName returns the configured service name or DefaultServiceName
func (c *Config) GetServiceName() string {
	if c == nil || c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the configured version or the build version
func (c *Config) GetServiceVersion() string {
	if c == nil || c.ServiceVersion == "" {
		return versions.Version
	}
	return c.ServiceVersion
}

// GetEndpoint returns the configured collector or DefaultEndpoint
func (c *Config) GetEndpoint() string {
	if c == nil || c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetInsecure returns the insecure flag
func (c *Config) GetInsecure() bool {
	return c != nil && c.Insecure
}

// tracingEnabled reports whether spans are exported
func (c *Config) tracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

// metricsEnabled reports whether any metrics exporter runs
func (c *Config) metricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}

// GetSampling returns the sampling ratio. YAML cannot tell an explicit 0 from
// an unset field, so 0 means DefaultSampling.
func (c *TracingConfig) GetSampling() float64 {
	if c == nil || c.Sampling == 0 {
		return DefaultSampling
	}
	return c.Sampling
}

// GetExporter returns the exporter, using otlp if not specified
func (c *MetricsConfig) GetExporter() string {
	if c == nil || c.Exporter == "" {
		return MetricsExporterOTLP
	}
	return c.Exporter
}

// UsesOTLP reports whether metrics are pushed over OTLP
func (c *MetricsConfig) UsesOTLP() bool {
	e := c.GetExporter()
	return e == MetricsExporterOTLP || e == MetricsExporterBoth
}

// UsesPrometheus reports whether metrics are served for scraping
func (c *MetricsConfig) UsesPrometheus() bool {
	e := c.GetExporter()
	return e == MetricsExporterPrometheus || e == MetricsExporterBoth
}

// Validate checks the enabled sections. Disabled telemetry is always valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.Tracing != nil && c.Tracing.Enabled {
		if s := c.Tracing.Sampling; s < 0 || s > 1 {
			errs = append(errs, fmt.Errorf("tracing: sampling must be between 0.0 and 1.0, got %f", s))
		}
	}
	if c.Metrics != nil && c.Metrics.Enabled {
		switch c.Metrics.GetExporter() {
		case MetricsExporterOTLP, MetricsExporterPrometheus, MetricsExporterBoth:
		default:
			errs = append(errs, fmt.Errorf("metrics: unsupported exporter %q (want %s, %s or %s)",
				c.Metrics.Exporter, MetricsExporterOTLP, MetricsExporterPrometheus, MetricsExporterBoth))
		}
	}
	return errors.Join(errs...)
}
