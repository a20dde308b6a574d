package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/stacklok/backoffice-console/internal/config"
	"github.com/stacklok/backoffice-console/internal/console"
	"github.com/stacklok/backoffice-console/internal/dashboard"
	"github.com/stacklok/backoffice-console/internal/events"
	"github.com/stacklok/backoffice-console/internal/httpclient"
	"github.com/stacklok/backoffice-console/internal/localstate"
	"github.com/stacklok/backoffice-console/internal/telemetry"
	"github.com/stacklok/backoffice-console/internal/versions"
)

// ConsoleApp holds the collection components of every screen and the shared infrastructure
// behind them: HTTP client, event bus, fallback store and telemetry.
type ConsoleApp struct {
	config    *config.Config
	client    httpclient.Client
	bus       events.Bus
	state     localstate.Store
	telemetry *telemetry.Telemetry
	notes     *console.Notifications

	resources   []*Resource
	byName      map[string]*Resource
	unsubscribe []func()

	mu      sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// Start runs the background reconcilers until ctx is done or Stop is called
func (a *ConsoleApp) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	for _, r := range a.resources {
		a.running.Add(1)
		go func() {
			defer a.running.Done()
			if err := r.Reconciler.Start(ctx); err != nil {
				slog.Error("Reconciler failed", "resource", r.Name(), "error", err)
			}
		}()
	}
}

// Stop stops the reconcilers and releases the bus, the fallback store and telemetry
func (a *ConsoleApp) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	for _, r := range a.resources {
		if err := r.Reconciler.Stop(); err != nil {
			slog.Warn("Failed to stop reconciler", "resource", r.Name(), "error", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	a.running.Wait()
	a.unsubscribeAll()

	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	if a.state != nil {
		errs = append(errs, a.state.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (a *ConsoleApp) unsubscribeAll() {
	for _, u := range a.unsubscribe {
		u()
	}
	a.unsubscribe = nil
}

// GetConfig returns the application configuration
func (a *ConsoleApp) GetConfig() *config.Config {
	return a.config
}

// Resources returns the built resources in catalog order
func (a *ConsoleApp) Resources() []*Resource {
	return a.resources
}

// Resource returns one built resource
func (a *ConsoleApp) Resource(name string) (*Resource, error) {
	r, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownResource, name)
	}
	return r, nil
}

// Notifications returns the queue mutation outcomes are reported to
func (a *ConsoleApp) Notifications() *console.Notifications {
	return a.notes
}

// Screens returns the console screens of every resource
func (a *ConsoleApp) Screens() []console.Screen {
	screens := make([]console.Screen, 0, len(a.resources))
	for _, r := range a.resources {
		screens = append(screens, r.Screen())
	}
	return screens
}

// Dashboard counts every resource
func (a *ConsoleApp) Dashboard(ctx context.Context) ([]dashboard.Summary, error) {
	sources := make([]dashboard.Source, 0, len(a.resources))
	for _, r := range a.resources {
		sources = append(sources, r.DashboardSource())
	}
	return dashboard.Summarize(ctx, sources)
}

// RunConsole starts the reconcilers and runs the interactive console until the user quits
func (a *ConsoleApp) RunConsole(ctx context.Context) error {
	a.Start(ctx)
	return console.Run(ctx, a.Screens(), a.notes)
}

// CheckBackend reads the backend /version and fails for releases older than the supported minimum
func (a *ConsoleApp) CheckBackend(ctx context.Context) (string, error) {
	target := strings.TrimRight(a.config.Backend.BaseURL, "/") + "/version"
	resp, err := a.client.Do(ctx, &httpclient.Request{Method: http.MethodGet, URL: target})
	if err != nil {
		return "", fmt.Errorf("failed to read backend version: %w", err)
	}
	version := gjson.GetBytes(resp.Body, "version").String()
	if err := versions.CheckBackend(version); err != nil {
		return version, err
	}
	return version, nil
}
