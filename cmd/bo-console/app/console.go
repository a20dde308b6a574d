package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stacklok/backoffice-console/internal/app"
	"github.com/stacklok/backoffice-console/internal/config"
	"github.com/stacklok/backoffice-console/internal/logging"
)

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the record count of every collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConsoleApp(cmd.Context(), func(a *app.ConsoleApp) error {
				summaries, err := a.Dashboard(cmd.Context())
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.Header("Resource", "Title", "Total", "Status")
				for _, s := range summaries {
					total, status := strconv.Itoa(s.Total), "ok"
					if s.Err != nil {
						total, status = "-", s.Message()
					}
					if err := table.Append([]string{s.Resource, s.Title, total, status}); err != nil {
						return fmt.Errorf("failed to render row: %w", err)
					}
				}
				return table.Render()
			}, app.WithAllResources())
		},
	}
}

func newConsoleCmd() *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open the interactive console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if logFile == "" {
				logFile = defaultLogFile()
			}
			if err := os.MkdirAll(filepath.Dir(logFile), 0o750); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
			// The terminal belongs to the screens; logs go to a file
			if _, err := logging.Setup(logging.WithLevel(logging.GetLogLevel()), logging.WithOutputPath(logFile)); err != nil {
				return fmt.Errorf("failed to redirect logs: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withConsoleApp(ctx, func(a *app.ConsoleApp) error {
				version, err := a.CheckBackend(ctx)
				if err != nil {
					return err
				}
				slog.Info("Backend reachable", "version", version)

				a.Start(ctx)
				return a.RunConsole(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "File receiving logs while the console runs")
	return cmd
}

// defaultLogFile places the console log next to the file fallback store
func defaultLogFile() string {
	path, err := xdg.StateFile(filepath.Join(config.DefaultStateDir, "console.log"))
	if err != nil {
		slog.Warn("Falling back to the working directory for the console log", "error", err)
		return "console.log"
	}
	return path
}
