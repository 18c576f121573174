package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultMetricsInterval is how often metrics are pushed over OTLP
const DefaultMetricsInterval = 60 * time.Second

// newResource describes the service to the collector
func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	// resource.New instead of merging with resource.Default() keeps the
	// schema URL of the semconv package we use
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.GetServiceName()),
			semconv.ServiceVersion(cfg.GetServiceVersion()),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// newTracerProvider returns an SDK provider batching spans to the OTLP
// endpoint, or a no-op provider when tracing is off. The SDK provider also
// becomes the global provider, with W3C trace context propagation.
func newTracerProvider(ctx context.Context, cfg *Config) (trace.TracerProvider, error) {
	if !cfg.tracingEnabled() {
		slog.Debug("Tracing disabled, using no-op tracer provider")
		return tracenoop.NewTracerProvider(), nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.GetEndpoint())}
	if cfg.GetInsecure() {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	sampling := cfg.Tracing.GetSampling()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampling))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.GetInsecure() {
		slog.Warn("Traces are exported over unencrypted HTTP")
	}
	slog.Info("Tracing initialized",
		"endpoint", cfg.GetEndpoint(),
		"sampling_ratio", sampling)

	return tp, nil
}

// newMeterProvider returns an SDK provider with one reader per configured
// exporter, or a no-op provider when metrics are off. The Prometheus reader
// registers with reg, or with the default registerer when reg is nil.
func newMeterProvider(ctx context.Context, cfg *Config, reg prometheus.Registerer) (metric.MeterProvider, error) {
	if !cfg.metricsEnabled() {
		slog.Debug("Metrics disabled, using no-op meter provider")
		return metricnoop.NewMeterProvider(), nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Metrics.UsesOTLP() {
		exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.GetEndpoint())}
		if cfg.GetInsecure() {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(DefaultMetricsInterval)),
		))
	}

	if cfg.Metrics.UsesPrometheus() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reader, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized",
		"exporter", cfg.Metrics.GetExporter(),
		"endpoint", cfg.GetEndpoint())

	return mp, nil
}
