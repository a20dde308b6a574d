// Package app provides the commands of the back-office console.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/backoffice-console/internal/logging"
	"github.com/stacklok/backoffice-console/internal/versions"
)

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "bo-console",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Back-office console for the store management backend",
		Long: `bo-console browses and edits the collections of the store management backend
(companies, menus, roles, products, users, ...) from the terminal.

Run "bo-console console" for the interactive screens, or use list, create,
update, delete and import for scripted changes.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	viper.SetEnvPrefix(logging.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to configuration file (YAML format)")
	flags.String("base-url", "", "Backend base URL, overrides the configuration file")
	flags.Bool("debug", false, "Enable debug logging")
	bindFlags(flags, "")
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if viper.GetBool("debug") {
			if _, err := logging.Setup(logging.WithLevel(slog.LevelDebug)); err != nil {
				return fmt.Errorf("failed to enable debug logging: %w", err)
			}
		}
		return nil
	}

	rootCmd.AddCommand(
		newListCmd(),
		newCreateCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newImportCmd(),
		newDashboardCmd(),
		newConsoleCmd(),
		newMockBackendCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
