// Package database provides the schema migrations for the Postgres package store.
package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5 scheme
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsFromSource returns a migration source driver from the embedded migrations.
func migrationsFromSource() source.Driver {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return d
}

// Migrator is the interface for the migration tooling.
type Migrator interface {
	Up() error
	Down() error
	Steps(int) error
	Migrate(version uint) error
	Version() (uint, bool, error)
	Close() (error, error)
}

// NewFromConnectionString returns a new migration instance from the given connection string.
// Both postgres:// and pgx5:// URLs are accepted.
func NewFromConnectionString(connString string) (Migrator, error) {
	d := migrationsFromSource()
	m, err := migrate.NewWithSourceInstance("iofs", d, migrateURL(connString))
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// LatestVersion returns the highest migration version embedded in the binary
func LatestVersion() (uint, error) {
	d := migrationsFromSource()
	defer func() { _ = d.Close() }()

	version, err := d.First()
	if err != nil {
		return 0, fmt.Errorf("failed to read first migration: %w", err)
	}
	for {
		next, err := d.Next(version)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return version, nil
			}
			return 0, fmt.Errorf("failed to read migration after %d: %w", version, err)
		}
		version = next
	}
}

// CurrentVersion reports the applied schema version. A database without any
// applied migration reports zero.
func CurrentVersion(m Migrator) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("database schema is dirty at version %d", version)
	}
	return version, nil
}

// MigrateTo steps the schema up to target. Nothing runs when the database is
// already at or beyond target.
func MigrateTo(m Migrator, target uint) error {
	current, err := CurrentVersion(m)
	if err != nil {
		return err
	}
	if current >= target {
		return nil
	}
	if err := m.Migrate(target); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate to version %d: %w", target, err)
	}
	return nil
}

// migrateURL rewrites a libpq style URL to the scheme registered by the pgx5 driver
func migrateURL(connString string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix)
		}
	}
	return connString
}
