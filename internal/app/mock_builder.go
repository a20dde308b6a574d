package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacklok/backoffice-console/internal/config"
	"github.com/stacklok/backoffice-console/internal/mockapi"
	"github.com/stacklok/backoffice-console/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultSeedCount      = 25
)

// MockBackendAppOptions is a function that configures the mock backend builder
type MockBackendAppOptions func(*mockBackendConfig) error

type httpTimeouts struct {
	request, read, write, idle time.Duration
}

type mockBackendConfig struct {
	config *config.Config

	address     string
	middlewares []func(http.Handler) http.Handler
	timeouts    httpTimeouts

	seedCount int
	metrics   bool
}

func baseMockConfig(opts ...MockBackendAppOptions) (*mockBackendConfig, error) {
	cfg := &mockBackendConfig{
		address: defaultHTTPAddress,
		timeouts: httpTimeouts{
			request: defaultRequestTimeout,
			read:    defaultReadTimeout,
			write:   defaultWriteTimeout,
			idle:    defaultIdleTimeout,
		},
		seedCount: defaultSeedCount,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.config == nil {
		cfg.config = config.Default()
	}
	return cfg, nil
}

// NewMockBackendApp builds the mock backend serving every catalog resource
func NewMockBackendApp(ctx context.Context, opts ...MockBackendAppOptions) (*MockBackendApp, error) {
	cfg, err := baseMockConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	serverOpts := []mockapi.ServerOption{}
	var shutdown func(context.Context) error

	if cfg.metrics {
		registry := prometheus.NewRegistry()
		tel, err := telemetry.New(ctx,
			telemetry.WithTelemetryConfig(&telemetry.Config{
				Enabled:     true,
				ServiceName: "bo-console-mock-backend",
				Metrics:     &telemetry.MetricsConfig{Enabled: true, Prometheus: true},
			}),
			telemetry.WithRegisterer(registry),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create telemetry: %w", err)
		}
		httpMetrics, err := telemetry.NewHTTPMetrics(tel.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		// Prepend metrics middleware to capture every request
		cfg.middlewares = append([]func(http.Handler) http.Handler{
			httpMetrics.Middleware,
			telemetry.TracingMiddleware(tel.TracerProvider()),
		}, cfg.defaultMiddlewares()...)
		serverOpts = append(serverOpts, mockapi.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
		shutdown = tel.Shutdown
		slog.Info("HTTP metrics middleware enabled")
	} else {
		cfg.middlewares = cfg.defaultMiddlewares()
	}
	serverOpts = append(serverOpts, mockapi.WithMiddlewares(cfg.middlewares...))

	resources := cfg.config.EffectiveResources()
	mockResources := make([]mockapi.Resource, 0, len(resources))
	for _, r := range resources {
		mockResources = append(mockResources, mockapi.Resource{Name: r.Name, DisplayKey: r.GetDisplayKey(), Bare: r.Bare})
		if cfg.seedCount > 0 {
			serverOpts = append(serverOpts, mockapi.WithGeneratedItems(r.Name, r.GetDisplayKey(), cfg.seedCount))
		}
	}
	backend := mockapi.NewServer(mockResources, serverOpts...)

	server := &http.Server{
		Addr:         cfg.address,
		Handler:      backend,
		ReadTimeout:  cfg.timeouts.read,
		WriteTimeout: cfg.timeouts.write,
		IdleTimeout:  cfg.timeouts.idle,
	}
	slog.Info("HTTP server configured", "address", cfg.address, "resources", len(mockResources))

	return &MockBackendApp{
		config:     cfg.config,
		backend:    backend,
		httpServer: server,
		shutdown:   shutdown,
	}, nil
}

func (cfg *mockBackendConfig) defaultMiddlewares() []func(http.Handler) http.Handler {
	if cfg.middlewares != nil {
		return cfg.middlewares
	}
	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(cfg.timeouts.request),
		mockapi.LoggingMiddleware,
	}
}

// WithMockConfig sets the configuration whose resources are served
func WithMockConfig(c *config.Config) MockBackendAppOptions {
	return func(cfg *mockBackendConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the listen address. The port is required, the host may be omitted.
func WithAddress(addr string) MockBackendAppOptions {
	return func(cfg *mockBackendConfig) error {
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("invalid listen port %q", port)
		}
		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) MockBackendAppOptions {
	return func(cfg *mockBackendConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithSeedCount sets how many generated records each resource starts with
func WithSeedCount(n int) MockBackendAppOptions {
	return func(cfg *mockBackendConfig) error {
		if n < 0 {
			return fmt.Errorf("seed count cannot be negative: %d", n)
		}
		cfg.seedCount = n
		return nil
	}
}

// WithMetrics serves Prometheus metrics on /metrics
func WithMetrics(enabled bool) MockBackendAppOptions {
	return func(cfg *mockBackendConfig) error {
		cfg.metrics = enabled
		return nil
	}
}
