package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zimshelf/zim-library/internal/otel"
	"github.com/zimshelf/zim-library/internal/settings"
	"github.com/zimshelf/zim-library/internal/status"
	pkgsync "github.com/zimshelf/zim-library/internal/sync"
)

// performSync executes one job and records its outcome in the status,
// the settings and the metrics
func (c *Coordinator) performSync(ctx context.Context, j *job) Result {
	ctx, span := otel.StartSpan(ctx, c.tracer, "coordinator.performSync",
		trace.WithAttributes(
			otel.AttrSyncJobID.String(j.id.String()),
			otel.AttrPreserveExisting.Bool(j.preserveExisting),
		))
	defer span.End()

	startTime := c.now()

	// Set up the final status update in a defer block to ensure that we always
	// record the outcome of the sync, even when the manager panics.
	syncStatus := c.loadStatus(ctx)
	syncStatus.Phase = status.SyncPhaseSyncing
	syncStatus.Message = "Sync in progress"
	syncStatus.JobID = j.id.String()
	syncStatus.LastAttempt = &startTime
	syncStatus.AttemptCount++
	c.saveStatus(ctx, syncStatus)

	syncStatus.Phase = status.SyncPhaseFailed
	syncStatus.Message = "Unexpected failure while syncing catalog"
	syncStatus.ErrorKind = string(pkgsync.KindUnclassified)
	defer c.saveStatus(ctx, syncStatus)

	slog.Info("Starting sync operation",
		"job_id", j.id,
		"preserve_existing", j.preserveExisting,
		"attempt", syncStatus.AttemptCount)

	result, syncErr := c.manager.PerformSync(ctx, pkgsync.Options{
		PreserveExisting: j.preserveExisting,
		Progress:         j.progress,
	})

	syncDuration := c.now().Sub(startTime)

	if syncErr != nil {
		otel.RecordError(span, syncErr)
		syncStatus.Message = syncErr.Error()
		syncStatus.ErrorKind = string(syncErr.Kind)
		slog.Error("Sync failed",
			"job_id", j.id,
			"kind", syncErr.Kind,
			"error", syncErr.Error())

		out := Result{Err: syncErr}
		c.syncMetrics.RecordSync(ctx, syncDuration, string(out.FetchOutcome()), j.preserveExisting)
		return out
	}

	completedAt := c.now()
	c.recordSuccess(ctx, completedAt)

	syncStatus.Phase = status.SyncPhaseComplete
	syncStatus.Message = "Sync completed successfully"
	syncStatus.ErrorKind = ""
	syncStatus.LastSyncTime = &completedAt
	syncStatus.LastSyncHash = result.Hash
	syncStatus.LastHadUpdates = result.HadUpdates
	syncStatus.PackageCount = result.PackageCount
	syncStatus.AttemptCount = 0

	hashPreview := result.Hash
	if len(hashPreview) > 8 {
		hashPreview = hashPreview[:8]
	}
	slog.Info("Sync completed successfully",
		"job_id", j.id,
		"package_count", result.PackageCount,
		"had_updates", result.HadUpdates,
		"duration", syncDuration,
		"hash", hashPreview)

	out := Result{HadUpdates: result.HadUpdates, Sync: result}
	c.syncMetrics.RecordSync(ctx, syncDuration, string(out.FetchOutcome()), j.preserveExisting)
	c.libraryMetrics.RecordPackagesTotal(ctx, int64(result.PackageCount))
	return out
}

// recordSuccess stamps the last sync time. The first successful sync also
// replaces the language filter with the locale language.
func (c *Coordinator) recordSuccess(ctx context.Context, completedAt time.Time) {
	if c.settings == nil {
		return
	}

	err := c.settings.Update(ctx, func(s *settings.Settings) error {
		if s.LastSyncTimestamp == nil {
			if code := baseLanguage(c.locale); code != "" {
				s.FilterLanguageCodes = []string{code}
				slog.Info("Applied default language filter", "language", code)
			}
		}
		stamp := completedAt.UTC()
		s.LastSyncTimestamp = &stamp
		return nil
	})
	if err != nil {
		slog.Error("Failed to record last sync time", "error", err)
	}
}

func (c *Coordinator) loadStatus(ctx context.Context) *status.SyncStatus {
	if c.statusPersistence == nil {
		return &status.SyncStatus{}
	}
	s, err := c.statusPersistence.LoadStatus(ctx)
	if err != nil {
		slog.Warn("Failed to load sync status, starting fresh", "error", err)
		return &status.SyncStatus{}
	}
	return s
}

func (c *Coordinator) saveStatus(ctx context.Context, s *status.SyncStatus) {
	if c.statusPersistence == nil {
		return
	}
	// The job context may already be cancelled during a forced shutdown
	if err := c.statusPersistence.SaveStatus(context.WithoutCancel(ctx), s); err != nil {
		slog.Error("Error updating sync status",
			"phase", s.Phase,
			"error", fmt.Errorf("failed to save status: %w", err))
	}
}
