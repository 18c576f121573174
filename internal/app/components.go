package app

import (
	"github.com/zimshelf/zim-library/internal/settings"
	"github.com/zimshelf/zim-library/internal/status"
	"github.com/zimshelf/zim-library/internal/store"
	"github.com/zimshelf/zim-library/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Store holds the package records
	Store store.Store

	// SyncCoordinator runs sync jobs one at a time
	SyncCoordinator *coordinator.Coordinator

	// Scheduler submits background syncs when they are due
	Scheduler *coordinator.Scheduler

	// Settings holds the process wide library settings
	Settings settings.Store

	// Status persists the outcome of the last sync
	Status status.StatusPersistence
}
