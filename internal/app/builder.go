package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"github.com/zimshelf/zim-library/internal/api"
	v1 "github.com/zimshelf/zim-library/internal/api/v1"
	"github.com/zimshelf/zim-library/internal/app/storage"
	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/settings"
	"github.com/zimshelf/zim-library/internal/sources"
	"github.com/zimshelf/zim-library/internal/sources/opds"
	"github.com/zimshelf/zim-library/internal/status"
	"github.com/zimshelf/zim-library/internal/store"
	pkgsync "github.com/zimshelf/zim-library/internal/sync"
	"github.com/zimshelf/zim-library/internal/sync/coordinator"
	"github.com/zimshelf/zim-library/internal/telemetry"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// tracerName is the instrumentation scope of sync and store spans
	tracerName = "github.com/zimshelf/zim-library"
)

// LibraryAppOptions is a function that configures the library app builder
type LibraryAppOptions func(*libraryAppConfig) error

// libraryAppConfig collects the builder inputs.
// It supports dependency injection for testing while providing sensible defaults for production.
type libraryAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	source         sources.Source
	syncManager    pkgsync.Manager
	storageFactory storage.Factory
	locale         *language.Tag

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...LibraryAppOptions) (*libraryAppConfig, error) {
	cfg := &libraryAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetServerAddress()
	}

	return cfg, nil
}

// NewLibraryApp wires the store, the sync pipeline and the HTTP server
func NewLibraryApp(
	ctx context.Context,
	opts ...LibraryAppOptions,
) (*LibraryApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Ensure cleanup happens on error
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded {
			cleanup()
		}
	}()

	components, cleanupComponents, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}
	cleanups = append(cleanups, cleanupComponents)

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	// Cleanup is now handled by the app, not in defer
	cleanupNeeded = false

	return &LibraryApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		cleanup:    cleanup,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) LibraryAppOptions {
	return func(cfg *libraryAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address, overriding the configuration
func WithAddress(addr string) LibraryAppOptions {
	return func(cfg *libraryAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host, port := parts[0], parts[1]
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) LibraryAppOptions {
	return func(cfg *libraryAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithSource allows injecting a custom catalog source (for testing)
func WithSource(s sources.Source) LibraryAppOptions {
	return func(cfg *libraryAppConfig) error {
		cfg.source = s
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) LibraryAppOptions {
	return func(cfg *libraryAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(sm pkgsync.Manager) LibraryAppOptions {
	return func(cfg *libraryAppConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithLocale overrides the locale used for the first-sync language filter
func WithLocale(tag language.Tag) LibraryAppOptions {
	return func(cfg *libraryAppConfig) error {
		cfg.locale = &tag
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for sync and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) LibraryAppOptions {
	return func(cfg *libraryAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) LibraryAppOptions {
	return func(cfg *libraryAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves Prometheus metrics on /metrics
func WithMetricsHandler(h http.Handler) LibraryAppOptions {
	return func(cfg *libraryAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

func (b *libraryAppConfig) tracer() trace.Tracer {
	if b.tracerProvider == nil {
		return nil
	}
	return b.tracerProvider.Tracer(tracerName)
}

// buildSyncComponents opens the store and builds the sync manager,
// coordinator and scheduler. The returned func releases what was opened.
func buildSyncComponents(
	ctx context.Context,
	b *libraryAppConfig,
) (*AppComponents, func(), error) {
	slog.Info("Initializing sync components")

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*AppComponents, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Create storage factory (single decision point for file vs Postgres)
	if b.storageFactory == nil {
		f, err := storage.NewStorageFactory(ctx, b.config, storage.WithTracer(b.tracer()))
		if err != nil {
			return fail(fmt.Errorf("failed to create storage factory: %w", err))
		}
		b.storageFactory = f
	}
	cleanups = append(cleanups, b.storageFactory.Cleanup)

	libraryStore, err := b.storageFactory.CreateStore(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to create store: %w", err))
	}
	cleanups = append(cleanups, func() {
		if err := libraryStore.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	})

	if b.syncManager == nil {
		source := b.source
		if source == nil {
			cache, closeCache, err := sources.NewCache(&b.config.Catalog)
			if err != nil {
				return fail(fmt.Errorf("failed to create catalog cache: %w", err))
			}
			if closeCache != nil {
				cleanups = append(cleanups, func() {
					if err := closeCache(); err != nil {
						slog.Warn("Failed to close catalog cache", "error", err)
					}
				})
			}

			source, err = sources.NewSourceFactory(cache).CreateSource(&b.config.Catalog)
			if err != nil {
				return fail(fmt.Errorf("failed to create catalog source: %w", err))
			}
		}

		b.syncManager = pkgsync.NewDefaultSyncManager(
			source,
			opds.NewParser(),
			libraryStore,
			pkgsync.WithTracer(b.tracer()),
		)
	}

	settingsStore, err := settings.NewFileStore(b.config.GetSettingsPath())
	if err != nil {
		return fail(fmt.Errorf("failed to create settings store: %w", err))
	}
	statusPersistence := status.NewFileStatusPersistence(b.config.GetStatusPath())

	coordOpts := []coordinator.Option{
		coordinator.WithStatusPersistence(statusPersistence),
		coordinator.WithTracer(b.tracer()),
	}
	if b.locale != nil {
		coordOpts = append(coordOpts, coordinator.WithLocale(*b.locale))
	}

	// Create sync metrics if meter provider is configured
	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return fail(fmt.Errorf("failed to create sync metrics: %w", err))
		}
		if syncMetrics != nil {
			coordOpts = append(coordOpts, coordinator.WithSyncMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}

		libraryMetrics, err := telemetry.NewLibraryMetrics(b.meterProvider)
		if err != nil {
			return fail(fmt.Errorf("failed to create library metrics: %w", err))
		}
		if libraryMetrics != nil {
			coordOpts = append(coordOpts, coordinator.WithLibraryMetrics(libraryMetrics))
			slog.Info("Library metrics enabled")
		}
	}

	syncCoordinator := coordinator.New(b.syncManager, settingsStore, coordOpts...)
	cleanups = append(cleanups, func() {
		// No-op when the app already drained the coordinator
		if err := syncCoordinator.Stop(context.Background()); err != nil {
			slog.Warn("Failed to stop sync coordinator", "error", err)
		}
	})
	scheduler := coordinator.NewScheduler(syncCoordinator, settingsStore, b.config.GetSyncInterval())

	slog.Info("Sync components initialized successfully",
		"storage_type", b.config.GetStorageType(),
		"sync_interval", b.config.GetSyncInterval())

	return &AppComponents{
		Store:           libraryStore,
		SyncCoordinator: syncCoordinator,
		Scheduler:       scheduler,
		Settings:        settingsStore,
		Status:          statusPersistence,
	}, cleanup, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *libraryAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Instrumentation goes first so it observes the whole chain
	if b.tracerProvider != nil || b.meterProvider != nil {
		instrument, err := telemetry.InstrumentationMiddleware(b.tracerProvider, b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP instrumentation: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{instrument}, b.middlewares...)
		slog.Info("HTTP instrumentation enabled")
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
	}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}

	router := api.NewServer(v1.Backend{
		Store:    components.Store,
		Sync:     components.SyncCoordinator,
		Status:   components.Status,
		Settings: components.Settings,
	}, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// OpenStore opens the configured store on its own, for commands that do not
// run the sync pipeline. The returned func closes the store and its factory.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	factory, err := storage.NewStorageFactory(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage factory: %w", err)
	}
	s, err := factory.CreateStore(ctx)
	if err != nil {
		factory.Cleanup()
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	return s, func() {
		_ = s.Close()
		factory.Cleanup()
	}, nil
}
