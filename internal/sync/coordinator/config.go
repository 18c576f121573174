package coordinator

import (
	"time"
)

const (
	// basePollingInterval is the base interval at which the scheduler checks whether a sync is due
	basePollingInterval = 2 * time.Minute
	// pollingJitter is the maximum random offset (±30 seconds) applied to the polling interval
	pollingJitter = 30 * time.Second

	// DefaultSyncInterval is the minimum time between two background syncs
	DefaultSyncInterval = 24 * time.Hour
)

// isSyncDue reports whether a background sync should run at now. A catalog
// that was never synced is always due; otherwise the interval since the last
// successful sync must have elapsed. The returned time is when the next sync
// becomes due.
func isSyncDue(lastSync *time.Time, interval time.Duration, now time.Time) (bool, time.Time) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	if lastSync == nil {
		return true, now
	}
	next := lastSync.Add(interval)
	return !now.Before(next), next
}
