// Package storage creates the package store selected by the configuration
// and owns the resources behind it.
package storage

import (
	"context"
	"fmt"

	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/store"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory opens the package store for one storage backend.
//
// It also manages the lifecycle of storage resources (e.g., database connections).
type Factory interface {
	// CreateStore opens the store, migrating its schema to the current version
	CreateStore(ctx context.Context) (store.Store, error)

	// Cleanup releases any resources held by this factory.
	// For database factories, this closes the connection pool.
	// For file factories, this is a no-op.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type.
// Returns a FileFactory for file-based storage or a DatabaseFactory for PostgreSQL.
func NewStorageFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorageType() {
	case config.StorageTypePostgres:
		return NewDatabaseFactory(ctx, cfg, opts...)
	case config.StorageTypeFile:
		return NewFileFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}
