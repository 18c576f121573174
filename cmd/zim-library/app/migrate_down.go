package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/zimshelf/zim-library/database"
	"github.com/zimshelf/zim-library/internal/config"
)

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Revert postgres schema migrations",
		Long: `Migrate the postgres store schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  zim-library migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all packages)
  zim-library migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	}
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.GetStorageType() != config.StorageTypePostgres {
		return fmt.Errorf("migrate down is only supported for the %s store", config.StorageTypePostgres)
	}

	if err := confirmMigrateDown(cmd, numSteps); err != nil {
		return err
	}

	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if err := executeMigrateDown(m, numSteps); err != nil {
		return err
	}
	return printMigrationVersion(cmd, m)
}

func confirmMigrateDown(cmd *cobra.Command, numSteps uint) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return nil
	}

	var prompt string
	if numSteps == 0 {
		prompt = "WARNING: This will migrate down ALL steps and remove every package. Continue?"
	} else {
		prompt = fmt.Sprintf("WARNING: This will migrate down %d step(s) and may result in data loss. Continue?", numSteps)
	}

	ok, err := confirm(cmd, prompt)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled")
		return fmt.Errorf("migration cancelled by user")
	}
	return nil
}

func executeMigrateDown(m database.Migrator, numSteps uint) error {
	var err error
	if numSteps == 0 {
		slog.Warn("Migrating down all steps, this will remove the whole schema")
		err = m.Down()
	} else {
		if numSteps > math.MaxInt {
			return fmt.Errorf("number of steps exceeds maximum allowed value")
		}
		err = m.Steps(-1 * int(numSteps)) // #nosec G115 -- overflow checked above
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("No migrations to revert, database is already at the oldest version")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
