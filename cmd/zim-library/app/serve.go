package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	libraryapp "github.com/zimshelf/zim-library/internal/app"
	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/telemetry"
)

const (
	defaultGracefulTimeout = 30 * time.Second // Lets a running sync finish its transaction
	telemetryFlushTimeout  = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the library API server",
		Long: `Start the library API server and the background sync scheduler.

The scheduler refreshes the catalog once the sync interval has elapsed since
the last successful sync, keeping the remote fields of packages already in the
library. Configuration comes from --config, ZIM_LIBRARY_* environment
variables and the flags below.`,
		RunE: runServe,
	}
	serveCmd.Flags().String("address", "", fmt.Sprintf("Address to listen on (default %s)", config.DefaultServerAddress))
	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	opts := []libraryapp.LibraryAppOptions{
		libraryapp.WithConfig(cfg),
		libraryapp.WithMeterProvider(tel.MeterProvider()),
		libraryapp.WithTracerProvider(tel.TracerProvider()),
	}
	if handler := tel.PrometheusHandler(); handler != nil {
		opts = append(opts, libraryapp.WithMetricsHandler(handler))
	}

	app, err := libraryapp.NewLibraryApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build library app: %w", err)
	}

	slog.Info("Starting library API server",
		"address", app.GetHTTPServer().Addr,
		"data_dir", cfg.GetDataDir(),
		"storage_type", cfg.GetStorageType())

	startErr := make(chan error, 1)
	go func() {
		startErr <- app.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-startErr:
		if stopErr := app.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop library app", "error", stopErr)
		}
		return err
	}

	if err := app.Stop(defaultGracefulTimeout); err != nil {
		return fmt.Errorf("failed to stop library app: %w", err)
	}
	return <-startErr
}
