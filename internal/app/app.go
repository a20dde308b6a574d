// Package app wires configuration into running components: the console application with its
// per-resource collection controllers, and the mock backend server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/backoffice-console/internal/config"
	"github.com/stacklok/backoffice-console/internal/mockapi"
)

// MockBackendApp serves the in-memory backend over HTTP.
// It provides lifecycle management and graceful shutdown capabilities.
type MockBackendApp struct {
	config     *config.Config
	backend    *mockapi.Server
	httpServer *http.Server
	shutdown   func(context.Context) error
}

// Start serves until the server is stopped or fails
func (app *MockBackendApp) Start() error {
	slog.Info("Mock backend listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server with the given timeout
func (app *MockBackendApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down mock backend...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if app.shutdown != nil {
		if err := app.shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to shut down telemetry", "error", err)
		}
	}

	slog.Info("Mock backend shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *MockBackendApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *MockBackendApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Backend returns the in-memory backend
func (app *MockBackendApp) Backend() *mockapi.Server {
	return app.backend
}
