package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/backoffice-console/internal/app"
	"github.com/stacklok/backoffice-console/internal/config"
)

const defaultGracefulTimeout = 30 * time.Second

func newMockBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve an in-memory backend for demos and tests",
		Long: `Serve an in-memory backend that speaks the same REST contract as the store
management backend. Every configured collection is seeded with generated records.`,
		Args: cobra.NoArgs,
		RunE: runMockBackend,
	}
	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().Int("seed", 25, "Generated records per collection")
	cmd.Flags().Bool("metrics", false, "Serve Prometheus metrics on /metrics")
	bindFlags(cmd.Flags(), "mock.")
	return cmd
}

func runMockBackend(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if path := viper.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(config.WithConfigPath(path))
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}

	mockApp, err := app.NewMockBackendApp(cmd.Context(),
		app.WithMockConfig(cfg),
		app.WithAddress(viper.GetString("mock.address")),
		app.WithSeedCount(viper.GetInt("mock.seed")),
		app.WithMetrics(viper.GetBool("mock.metrics")),
	)
	if err != nil {
		return fmt.Errorf("failed to create mock backend: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- mockApp.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mock backend failed: %w", err)
		}
		return nil
	case <-quit:
	}
	return mockApp.Stop(defaultGracefulTimeout)
}
