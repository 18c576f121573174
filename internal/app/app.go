// Package app provides application lifecycle management for the library service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zimshelf/zim-library/internal/config"
)

// LibraryApp encapsulates all components needed to run the library service.
// It provides lifecycle management and graceful shutdown capabilities.
type LibraryApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// cleanup releases the store, the catalog cache and the storage factory
	cleanup func()

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the HTTP server and the background sync scheduler.
// It blocks until the HTTP server stops or either component fails.
func (app *LibraryApp) Start() error {
	g, ctx := errgroup.WithContext(app.ctx)

	g.Go(func() error {
		if err := app.components.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("sync scheduler failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		// The scheduler follows the server down
		app.cancelFunc()
		return nil
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout.
// It stops the scheduler, drains the sync coordinator and then shuts down
// the HTTP server.
func (app *LibraryApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error

	if err := app.components.Scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop sync scheduler: %w", err))
	}

	if err := app.components.SyncCoordinator.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop sync coordinator: %w", err))
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}

	if app.cleanup != nil {
		app.cleanup()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *LibraryApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *LibraryApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired application components
func (app *LibraryApp) Components() *AppComponents {
	return app.components
}
