package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/stacklok/backoffice-console/internal/backend"
	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/config"
	"github.com/stacklok/backoffice-console/internal/console"
	"github.com/stacklok/backoffice-console/internal/events"
	"github.com/stacklok/backoffice-console/internal/httpclient"
	"github.com/stacklok/backoffice-console/internal/localstate"
	"github.com/stacklok/backoffice-console/internal/reconcile"
	"github.com/stacklok/backoffice-console/internal/telemetry"
	"github.com/stacklok/backoffice-console/internal/validation"
)

const tracerName = "github.com/stacklok/backoffice-console"

// ConsoleAppOptions is a function that configures the console app builder
type ConsoleAppOptions func(*consoleAppConfig) error

// consoleAppConfig collects the builder inputs. Injected components win over the ones built
// from config.
type consoleAppConfig struct {
	config *config.Config

	client     httpclient.Client
	bus        events.Bus
	state      localstate.Store
	stateSet   bool
	telemetry  *telemetry.Telemetry
	validator  collection.Validator
	notes      *console.Notifications
	visibleAll bool
}

func baseConsoleConfig(opts ...ConsoleAppOptions) (*consoleAppConfig, error) {
	cfg := &consoleAppConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.config == nil {
		cfg.config = config.Default()
	}
	if err := cfg.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) ConsoleAppOptions {
	return func(cfg *consoleAppConfig) error {
		if c == nil {
			return errors.New("config cannot be nil")
		}
		cfg.config = c
		return nil
	}
}

// WithHTTPClient replaces the client built from backend settings
func WithHTTPClient(c httpclient.Client) ConsoleAppOptions {
	return func(cfg *consoleAppConfig) error {
		cfg.client = c
		return nil
	}
}

// WithBus replaces the event bus built from events settings
func WithBus(b events.Bus) ConsoleAppOptions {
	return func(cfg *consoleAppConfig) error {
		cfg.bus = b
		return nil
	}
}

// WithLocalState replaces the fallback store built from localState settings. A nil store
// disables fallback caching.
func WithLocalState(s localstate.Store) ConsoleAppOptions {
	return func(cfg *consoleAppConfig) error {
		cfg.state = s
		cfg.stateSet = true
		return nil
	}
}

// WithTelemetry sets the telemetry providers
func WithTelemetry(t *telemetry.Telemetry) ConsoleAppOptions {
	return func(cfg *consoleAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithValidator replaces the schema registry built from resource settings
func WithValidator(v collection.Validator) ConsoleAppOptions {
	return func(cfg *consoleAppConfig) error {
		cfg.validator = v
		return nil
	}
}

// WithNotifications sets where mutation outcomes are reported
func WithNotifications(n *console.Notifications) ConsoleAppOptions {
	return func(cfg *consoleAppConfig) error {
		cfg.notes = n
		return nil
	}
}

// WithAllResources builds every catalog resource, ignoring console.screens
func WithAllResources() ConsoleAppOptions {
	return func(cfg *consoleAppConfig) error {
		cfg.visibleAll = true
		return nil
	}
}

// NewConsoleApp builds the collection components of every visible resource
func NewConsoleApp(ctx context.Context, opts ...ConsoleAppOptions) (*ConsoleApp, error) {
	b, err := baseConsoleConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	var cleanups []func() error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			for _, c := range cleanups {
				_ = c()
			}
		}
	}()

	if b.telemetry == nil {
		// New falls back to noop providers when telemetry is absent or disabled
		if b.telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(b.config.Telemetry)); err != nil {
			return nil, fmt.Errorf("failed to create telemetry: %w", err)
		}
		tel := b.telemetry
		cleanups = append(cleanups, func() error { return tel.Shutdown(context.Background()) })
	}
	if b.client == nil {
		if b.client, err = buildHTTPClient(b.config); err != nil {
			return nil, fmt.Errorf("failed to build HTTP client: %w", err)
		}
	}
	if b.bus == nil {
		if b.bus, err = buildBus(b.config); err != nil {
			return nil, fmt.Errorf("failed to build event bus: %w", err)
		}
		cleanups = append(cleanups, b.bus.Close)
	}
	if !b.stateSet {
		if b.state, err = localstate.Open(ctx, b.config.GetLocalState()); err != nil {
			return nil, fmt.Errorf("failed to open local state: %w", err)
		}
		if b.state != nil {
			cleanups = append(cleanups, b.state.Close)
		}
	}
	if b.validator == nil {
		if b.validator, err = buildValidator(b.config); err != nil {
			return nil, fmt.Errorf("failed to build validators: %w", err)
		}
	}
	if b.notes == nil {
		b.notes = console.NewNotifications(0)
	}

	app := &ConsoleApp{
		config:    b.config,
		client:    b.client,
		bus:       b.bus,
		state:     b.state,
		telemetry: b.telemetry,
		notes:     b.notes,
		byName:    make(map[string]*Resource),
	}

	resources := b.config.VisibleResources()
	if b.visibleAll {
		resources = b.config.EffectiveResources()
	}
	if err := app.buildResources(b, resources); err != nil {
		return nil, err
	}

	cleanupNeeded = false
	slog.Info("Console components initialized", "resources", len(app.resources), "events", b.config.GetEventsBackend())
	return app, nil
}

func buildHTTPClient(cfg *config.Config) (httpclient.Client, error) {
	token, err := cfg.Backend.GetToken()
	if err != nil {
		return nil, err
	}
	var opts []httpclient.Option
	if token != "" {
		opts = append(opts, httpclient.WithBearerToken(token))
	}
	if cfg.Backend.RateLimit > 0 {
		opts = append(opts, httpclient.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.Burst))
	}
	return httpclient.NewDefaultClient(cfg.Backend.GetTimeout(), opts...), nil
}

func buildBus(cfg *config.Config) (events.Bus, error) {
	switch cfg.GetEventsBackend() {
	case config.EventsNATS:
		var opts []events.NATSOption
		if cfg.Events.SubjectPrefix != "" {
			opts = append(opts, events.WithSubjectPrefix(cfg.Events.SubjectPrefix))
		}
		return events.DialNATS(cfg.Events.URL, opts...)
	default:
		return events.NewLocalBus(), nil
	}
}

func buildValidator(cfg *config.Config) (*validation.Registry, error) {
	reg := validation.NewRegistry()
	for _, r := range cfg.EffectiveResources() {
		switch {
		case r.SchemaFile != "":
			if err := reg.AddSchemaFile(r.Name, r.SchemaFile); err != nil {
				return nil, err
			}
		case len(r.Required) > 0:
			if err := reg.AddRequired(r.Name, r.Required); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

func (a *ConsoleApp) buildResources(b *consoleAppConfig, resources []config.ResourceConfig) error {
	mp := b.telemetry.MeterProvider()
	collMetrics, err := telemetry.NewCollectionMetrics(mp)
	if err != nil {
		return fmt.Errorf("failed to create collection metrics: %w", err)
	}
	recMetrics, err := telemetry.NewReconcileMetrics(mp)
	if err != nil {
		return fmt.Errorf("failed to create reconcile metrics: %w", err)
	}
	tracer := b.telemetry.Tracer(tracerName)
	locale := language.Make(b.config.Console.GetLocale())
	pageSize := b.config.Console.GetPageSize()

	for _, rc := range resources {
		rest := backend.NewREST(a.client, b.config.Backend.BaseURL, rc.Name)
		res := &Resource{Config: rc, Backend: rest, assetBase: b.config.Backend.AssetBaseURL}

		var target collection.Target
		if rc.LocalView {
			viewOpts := []collection.LocalViewOption{
				collection.WithDeriveOptions(collection.DeriveOptions{DisplayKey: rc.GetDisplayKey(), Locale: locale}),
				collection.WithLocalPageSize(pageSize),
			}
			if rc.FallbackKey != "" && b.state != nil {
				viewOpts = append(viewOpts, collection.WithFallbackCache(localstate.NewCollectionCache(b.state, rc.FallbackKey)))
			}
			res.LocalView = collection.NewLocalView(rc.Name, rest, viewOpts...)
			res.Controller, target = res.LocalView, res.LocalView
		} else {
			store := collection.NewStore(rc.Name, collection.WithPageSize(pageSize))
			res.Controller = collection.NewSynchronizer(store, rest,
				collection.WithExtraParams(rc.ExtraParams()),
				collection.WithMetrics(collMetrics),
				collection.WithTracer(tracer),
			)
			target = store
		}

		recOpts := []reconcile.Option{reconcile.WithMetrics(recMetrics)}
		if d := b.config.Console.GetDebounce(); d > 0 {
			recOpts = append(recOpts, reconcile.WithDebounce(d))
		}
		if d := rc.GetAutoRefresh(); d > 0 {
			recOpts = append(recOpts, reconcile.WithInterval(d))
		}
		res.Reconciler = reconcile.New(rc.Name, res.Controller, recOpts...)

		res.Coordinator = collection.NewCoordinator(target, rest,
			collection.WithValidator(b.validator),
			collection.WithRefreshScheduler(res.Reconciler),
			collection.WithPublisher(b.bus, rc.GetSingular()),
			collection.WithNotifier(b.notes),
			collection.WithNewestFirst(rc.IsNewestFirst()),
			collection.WithMutationMetrics(collMetrics),
			collection.WithMutationTracer(tracer),
		)

		for _, topic := range rc.RefreshOn {
			unsubscribe, err := b.bus.Subscribe(events.Topic(topic), res.Reconciler.OnEvent)
			if err != nil {
				a.unsubscribeAll()
				return fmt.Errorf("failed to subscribe %s to %s: %w", rc.Name, topic, err)
			}
			a.unsubscribe = append(a.unsubscribe, unsubscribe)
		}

		a.resources = append(a.resources, res)
		a.byName[rc.Name] = res
		slog.Debug("Resource initialized",
			"resource", rc.Name,
			"local_view", rc.LocalView,
			"refresh_on", rc.RefreshOn)
	}
	return nil
}
