package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	libraryapp "github.com/zimshelf/zim-library/internal/app"
	"github.com/zimshelf/zim-library/internal/sync/coordinator"
)

func newSyncCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one catalog sync and exit",
		Long: `Fetch the remote catalog once and reconcile it into the library.

Without --refresh, packages already in the library keep their remote fields and
only new or removed catalog entries are applied. With --refresh, every package
still in the catalog is updated from it.`,
		RunE: runSync,
	}
	syncCmd.Flags().Bool("refresh", false, "Update the remote fields of packages already in the library")
	return syncCmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	refresh, err := cmd.Flags().GetBool("refresh")
	if err != nil {
		return fmt.Errorf("failed to get refresh flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := libraryapp.NewLibraryApp(ctx, libraryapp.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build library app: %w", err)
	}
	defer func() {
		if err := app.Stop(defaultGracefulTimeout); err != nil {
			slog.Error("Failed to stop library app", "error", err)
		}
	}()

	result, err := runSyncJob(ctx, app.Components().SyncCoordinator, !refresh)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "sync %s (packages: %d)\n", result.FetchOutcome(), result.Sync.PackageCount)
	return err
}

// runSyncJob submits one job and waits for it. Interrupting before the job
// starts withdraws it; a running job is left to finish.
func runSyncJob(ctx context.Context, coord *coordinator.Coordinator, preserveExisting bool) (coordinator.Result, error) {
	handle, err := coord.Submit(preserveExisting)
	if err != nil {
		return coordinator.Result{}, fmt.Errorf("failed to submit sync: %w", err)
	}

	select {
	case <-handle.Done():
	case <-ctx.Done():
		if handle.Cancel() {
			return coordinator.Result{}, fmt.Errorf("sync interrupted before it started")
		}
		slog.Info("Waiting for the running sync to finish", "job_id", handle.ID())
		<-handle.Done()
	}

	result, _ := handle.Result()
	if result.Err != nil {
		return result, fmt.Errorf("sync failed: %w", result.Err)
	}
	return result, nil
}
