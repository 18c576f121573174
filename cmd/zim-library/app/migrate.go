package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zimshelf/zim-library/database"
	"github.com/zimshelf/zim-library/internal/config"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Store schema migration tool",
		Long:  `Store schema migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	migrateCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	migrateCmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")

	migrateCmd.AddCommand(newMigrateUpCmd())
	migrateCmd.AddCommand(newMigrateDownCmd())
	return migrateCmd
}

// newMigrator opens the golang-migrate instance for the configured database
func newMigrator(cfg *config.Config) (database.Migrator, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	connString, err := cfg.Database.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}
	m, err := database.NewFromConnectionString(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

func closeMigrator(cmd *cobra.Command, m database.Migrator) {
	srcErr, dbErr := m.Close()
	if srcErr != nil || dbErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed to close migrator: %v %v\n", srcErr, dbErr)
	}
}

// confirm asks a yes/no question on an interactive terminal. Non-interactive
// input never confirms; callers pass --yes instead.
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	in := cmd.InOrStdin()
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, fmt.Errorf("cannot prompt for confirmation without a terminal, pass --yes to continue")
	}
	return readConfirmation(in, cmd.ErrOrStderr(), prompt)
}

func readConfirmation(in io.Reader, out io.Writer, prompt string) (bool, error) {
	if _, err := fmt.Fprintf(out, "%s (yes/no): ", prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "yes", "y":
		return true, nil
	default:
		return false, nil
	}
}
