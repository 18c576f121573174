package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/store"
	"github.com/zimshelf/zim-library/internal/store/file"
)

// FileFactory opens the JSON document store under the data directory
type FileFactory struct {
	path string
}

var _ Factory = (*FileFactory)(nil)

// NewFileFactory creates a new file-based storage factory,
// ensuring the store directory exists.
func NewFileFactory(cfg *config.Config) (*FileFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	path := cfg.GetStorePath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	slog.Info("Creating file-based storage factory", "path", path)

	return &FileFactory{path: path}, nil
}

// CreateStore opens the file store, taking its lock file
func (f *FileFactory) CreateStore(ctx context.Context) (store.Store, error) {
	slog.Debug("Opening file store", "path", f.path)
	s, err := file.Open(ctx, f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file store: %w", err)
	}
	return s, nil
}

// Cleanup is a no-op; the store releases its lock on Close
func (*FileFactory) Cleanup() {
	slog.Debug("Cleaning up file storage factory (no-op)")
}
