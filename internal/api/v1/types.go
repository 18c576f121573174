package v1

import (
	"github.com/zimshelf/zim-library/internal/api/common"
	"github.com/zimshelf/zim-library/internal/library"
	"github.com/zimshelf/zim-library/internal/status"
	"github.com/zimshelf/zim-library/internal/sync/coordinator"
)

// ErrorResponse is the body of every error reply
type ErrorResponse = common.ErrorResponse

// PackageListResponse is returned by GET /v1/packages
type PackageListResponse struct {
	Packages []*library.Package `json:"packages"`
	Count    int                `json:"count"`
}

// SubmitSyncRequest is the optional body of POST /v1/sync
type SubmitSyncRequest struct {
	// Refresh overwrites the remote fields of packages already in the store
	Refresh bool `json:"refresh"`
}

// SubmitSyncResponse describes the job accepted by POST /v1/sync
type SubmitSyncResponse struct {
	Job coordinator.Snapshot `json:"job"`
}

// CurrentSyncResponse is returned by GET /v1/sync/current. Job is set
// while a sync is in flight; Status holds the last persisted outcome.
type CurrentSyncResponse struct {
	Job    *coordinator.Snapshot `json:"job,omitempty"`
	Status *status.SyncStatus    `json:"status,omitempty"`
}

// SettingsResponse is returned by the settings endpoints
type SettingsResponse struct {
	LastSyncTimestamp        *string  `json:"lastSyncTimestamp,omitempty"`
	FilterLanguageCodes      []string `json:"filterLanguageCodes"`
	HasShownLanguageHintOnce bool     `json:"hasShownLanguageHintOnce"`
	NeedsLanguageHint        bool     `json:"needsLanguageHint"`
}
