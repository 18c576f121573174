// Package app provides the command line interface of the zim-library service.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/versions"
)

// flagKeys maps persistent flags onto configuration override keys
var flagKeys = map[string]string{
	"data-dir":     "data_dir",
	"catalog-url":  "catalog.url",
	"catalog-file": "catalog.file",
	"storage":      "storage.type",
	"address":      "server.address",
}

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "zim-library",
		DisableAutoGenTag: true,
		Short:             "Offline content catalog service",
		Long: `zim-library keeps a local library of offline content packages in sync with
a remote OPDS catalog and serves it over a REST API.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to configuration file (YAML format)")
	flags.String("data-dir", "", "Directory holding the store, settings and sync status")
	flags.String("catalog-url", "", "OPDS catalog endpoint")
	flags.String("catalog-file", "", "Read the catalog from a local file instead of the network")
	flags.String("storage", "", "Store backend (file or postgres)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig reads the configuration file named by --config, then applies
// ZIM_LIBRARY_* environment variables and explicitly set flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind %s flag: %w", name, err)
			}
		}
	}

	opts := []config.Option{config.WithOverrides(v)}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if configPath != "" {
		opts = append(opts, config.WithConfigPath(configPath))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(out, string(output))
				return err
			}

			_, err = fmt.Fprintf(out, "zim-library %s (commit %s, built %s, %s %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	versionCmd.Flags().String("format", "", "Output format (json)")
	return versionCmd
}
