package coordinator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/zimshelf/zim-library/internal/settings"
)

// submitter is the part of the Coordinator the scheduler drives
type submitter interface {
	Submit(preserveExisting bool) (*Handle, error)
	Latest() (Snapshot, bool)
}

// Scheduler submits a background sync whenever the configured interval has
// elapsed since the last successful one. Background syncs preserve the
// remote fields of packages already in the store.
type Scheduler struct {
	coord    submitter
	settings settings.Store
	interval time.Duration
	now      func() time.Time

	// Lifecycle management
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// NewScheduler creates a scheduler for coord
func NewScheduler(coord *Coordinator, settingsStore settings.Store, interval time.Duration) *Scheduler {
	return newScheduler(coord, settingsStore, interval)
}

func newScheduler(coord submitter, settingsStore settings.Store, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Scheduler{
		coord:    coord,
		settings: settingsStore,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// calculatePollingInterval returns the base polling interval with a random jitter applied.
func calculatePollingInterval() time.Duration {
	// Generate a random offset between -pollingJitter and +pollingJitter
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*pollingJitter))) - pollingJitter
	return basePollingInterval + jitterOffset
}

// Start runs the scheduling loop. Blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	slog.Info("Starting background sync scheduler", "sync_interval", s.interval)

	schedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelFunc = cancel
	s.mu.Unlock()
	defer func() {
		close(s.done)
		slog.Info("Background sync scheduler shutting down")
	}()

	pollingInterval := calculatePollingInterval()
	slog.Info("Configured scheduler polling interval",
		"base_interval", basePollingInterval,
		"actual_interval", pollingInterval)

	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	// Perform initial sync check
	s.checkAndSubmit(schedCtx)

	for {
		select {
		case <-ticker.C:
			s.checkAndSubmit(schedCtx)

			// Recalculate interval with new jitter for next iteration
			ticker.Reset(calculatePollingInterval())
		case <-schedCtx.Done():
			slog.Info("Sync scheduler stopping")
			return nil
		}
	}
}

// Stop stops the scheduling loop and waits for it to exit
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancelFunc
	s.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync scheduler")
		cancel()
		<-s.done
	}
	return nil
}

// checkAndSubmit submits a background sync when one is due and nothing is in
// flight. It reports whether a job was submitted.
func (s *Scheduler) checkAndSubmit(ctx context.Context) bool {
	if latest, ok := s.coord.Latest(); ok {
		slog.Debug("Sync already in flight, skipping scheduled check",
			"job_id", latest.ID,
			"state", latest.State)
		return false
	}

	current, err := s.settings.Load(ctx)
	if err != nil {
		slog.Error("Failed to load settings for scheduled sync", "error", err)
		return false
	}

	due, next := isSyncDue(current.LastSyncTimestamp, s.interval, s.now())
	if !due {
		slog.Debug("Background sync not due", "next_sync", next)
		return false
	}

	handle, err := s.coord.Submit(true)
	if err != nil {
		slog.Warn("Failed to submit background sync", "error", err)
		return false
	}

	handle.OnComplete(func(result Result) {
		slog.Info("Background sync finished",
			"job_id", handle.ID(),
			"outcome", result.FetchOutcome())
	})
	return true
}
