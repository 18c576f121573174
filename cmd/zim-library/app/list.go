package app

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	libraryapp "github.com/zimshelf/zim-library/internal/app"
	"github.com/zimshelf/zim-library/internal/library"
	"github.com/zimshelf/zim-library/internal/store"
)

func newListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List packages in the library",
		Long: `List the packages currently in the library store.

Both filters accept repeated flags or comma separated values, for example
--state local,downloadInProgress --language en.`,
		RunE: runList,
	}
	listCmd.Flags().StringSlice("state", nil, "Only list packages in these states")
	listCmd.Flags().StringSlice("language", nil, "Only list packages in these languages")
	return listCmd
}

func runList(cmd *cobra.Command, _ []string) error {
	states, err := cmd.Flags().GetStringSlice("state")
	if err != nil {
		return fmt.Errorf("failed to get state flag: %w", err)
	}
	languages, err := cmd.Flags().GetStringSlice("language")
	if err != nil {
		return fmt.Errorf("failed to get language flag: %w", err)
	}

	pred, err := listPredicate(states, languages)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	libraryStore, closeStore, err := libraryapp.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	packages, err := libraryStore.Scan(ctx, pred)
	if err != nil {
		return fmt.Errorf("failed to list packages: %w", err)
	}
	return renderPackages(cmd.OutOrStdout(), packages)
}

// listPredicate builds the store filter for the list flags
func listPredicate(states, languages []string) (store.Predicate, error) {
	var preds []store.Predicate

	if len(states) > 0 {
		parsed := make([]library.State, 0, len(states))
		for _, raw := range states {
			state, ok := library.ParseState(strings.TrimSpace(raw))
			if !ok {
				return nil, fmt.Errorf("invalid state: %s", raw)
			}
			parsed = append(parsed, state)
		}
		preds = append(preds, store.ByState(parsed...))
	}

	if len(languages) > 0 {
		codes := make([]string, 0, len(languages))
		for _, code := range languages {
			codes = append(codes, strings.TrimSpace(code))
		}
		preds = append(preds, store.ByLanguage(codes...))
	}

	return store.All(preds...), nil
}

// renderPackages writes packages as a table
func renderPackages(w io.Writer, packages []*library.Package) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Title", "Language", "Category", "State", "Size")

	for _, pkg := range packages {
		row := []string{
			pkg.ID,
			pkg.Title,
			pkg.LanguageCode,
			string(pkg.Category),
			string(pkg.State),
			formatSize(pkg.SizeBytes),
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render package %s: %w", pkg.ID, err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render packages: %w", err)
	}
	_, err := fmt.Fprintf(w, "%d package(s)\n", len(packages))
	return err
}

func formatSize(size *int64) string {
	if size == nil {
		return "-"
	}
	const unit = 1024
	if *size < unit {
		return strconv.FormatInt(*size, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := *size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(*size)/float64(div), "KMGTPE"[exp])
}
