// Package main is the entry point for the back-office console.
package main

import (
	"log/slog"
	"os"

	"github.com/stacklok/backoffice-console/cmd/bo-console/app"
	"github.com/stacklok/backoffice-console/internal/config"
	"github.com/stacklok/backoffice-console/internal/logging"
)

func main() {
	// Environment files come first so BO_CONSOLE_LOG_LEVEL set there is honored
	if err := config.LoadEnvFiles(); err != nil {
		slog.Warn("Ignoring env file", "error", err)
	}

	// Logs go to stderr to keep stdout clean for list and version --format json
	sync, err := logging.Setup(logging.WithLevel(logging.GetLogLevel()))
	if err != nil {
		slog.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sync() }()

	if err := app.NewRootCmd().Execute(); err != nil {
		_ = sync()
		os.Exit(1)
	}
}
