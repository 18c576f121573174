package status

import "time"

// SyncPhase represents the current phase of a synchronization operation
type SyncPhase string

const (
	// SyncPhaseIdle means no sync has run yet
	SyncPhaseIdle SyncPhase = "Idle"

	// SyncPhaseSyncing means sync is currently in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means sync completed successfully
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means sync failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// SyncStatus represents the state of catalog synchronization as last observed
// by the coordinator
type SyncStatus struct {
	// Phase represents the current synchronization phase
	Phase SyncPhase `json:"phase"`

	// Message provides additional information about the sync status
	Message string `json:"message,omitempty"`

	// ErrorKind classifies the last failure, empty after a success
	ErrorKind string `json:"errorKind,omitempty"`

	// JobID identifies the job that last touched the status
	JobID string `json:"jobID,omitempty"`

	// LastAttempt is the timestamp of the last sync attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of sync attempts since last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful sync
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// LastSyncHash is the hash of the last successfully synced catalog
	LastSyncHash string `json:"lastSyncHash,omitempty"`

	// LastHadUpdates reports whether the last successful sync changed the package set
	LastHadUpdates bool `json:"lastHadUpdates,omitempty"`

	// PackageCount is the number of packages in the last synced catalog
	PackageCount int `json:"packageCount,omitempty"`
}
