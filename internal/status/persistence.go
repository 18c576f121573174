// Package status records what the last sync did, for the status endpoint and
// for the scheduler across restarts.
package status

import (
	"context"
	"fmt"

	"github.com/zimshelf/zim-library/internal/fsutil"
)

// StatusFileName is the status file inside the data directory
const StatusFileName = "sync-status.json"

// StatusPersistence stores the sync status between runs
//
//nolint:revive // status.StatusPersistence reads fine at call sites
type StatusPersistence interface {
	SaveStatus(ctx context.Context, status *SyncStatus) error

	// LoadStatus returns an idle status before the first save
	LoadStatus(ctx context.Context) (*SyncStatus, error)
}

type fileStatusPersistence struct {
	path string
}

// NewFileStatusPersistence keeps the status as JSON at path
func NewFileStatusPersistence(path string) StatusPersistence {
	return &fileStatusPersistence{path: path}
}

func (f *fileStatusPersistence) SaveStatus(_ context.Context, s *SyncStatus) error {
	if err := fsutil.WriteJSON(f.path, s); err != nil {
		return fmt.Errorf("failed to save status data: %w", err)
	}
	return nil
}

func (f *fileStatusPersistence) LoadStatus(_ context.Context) (*SyncStatus, error) {
	s := &SyncStatus{}
	if _, err := fsutil.ReadJSON(f.path, s); err != nil {
		return nil, fmt.Errorf("failed to load status data: %w", err)
	}
	if s.Phase == "" {
		s.Phase = SyncPhaseIdle
	}
	return s, nil
}
