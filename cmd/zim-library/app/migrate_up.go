package app

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/zimshelf/zim-library/database"
	libraryapp "github.com/zimshelf/zim-library/internal/app"
	"github.com/zimshelf/zim-library/internal/config"
)

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending schema migrations",
		Long: `Bring the store schema up to date.

For the postgres store this applies the pending SQL migrations, honouring
--num-steps. The file store upgrades its document in place when opened, so
the command opens it and reports the resulting version.`,
		RunE: runMigrateUp,
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.GetStorageType() != config.StorageTypePostgres {
		return migrateFileStoreUp(cmd, cfg)
	}

	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if err := executeMigrateUp(m, numSteps); err != nil {
		return err
	}
	return printMigrationVersion(cmd, m)
}

func migrateFileStoreUp(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	libraryStore, closeStore, err := libraryapp.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	version, err := libraryStore.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Store %s is at schema version %d\n", cfg.GetStorePath(), version)
	return err
}

func executeMigrateUp(m database.Migrator, numSteps uint) error {
	var err error
	if numSteps == 0 {
		err = m.Up()
	} else {
		if numSteps > math.MaxInt {
			return fmt.Errorf("number of steps exceeds maximum allowed value")
		}
		err = m.Steps(int(numSteps)) // #nosec G115 -- overflow checked above
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func printMigrationVersion(cmd *cobra.Command, m database.Migrator) error {
	version, err := database.CurrentVersion(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", version)
	return err
}
