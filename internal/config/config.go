// Package config provides configuration loading and management for the back-office console.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/backoffice-console/internal/filtering"
	"github.com/stacklok/backoffice-console/internal/localstate"
	"github.com/stacklok/backoffice-console/internal/telemetry"
)

const (
	// DefaultBaseURL is the backend used when none is configured
	DefaultBaseURL = "http://localhost:8080"
	// DefaultTimeout bounds every backend request
	DefaultTimeout = 10 * time.Second
	// DefaultPageSize is the page size of server-paginated screens
	DefaultPageSize = 10
	// DefaultLocale drives client-side sort order
	DefaultLocale = "en"
	// DefaultStateDir holds the file fallback store and console log, relative to $XDG_STATE_HOME
	DefaultStateDir = "bo-console"
)

// Event bus backends
const (
	EventsLocal = "local"
	EventsNATS  = "nats"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Backend    BackendConfig     `yaml:"backend"`
	Console    ConsoleConfig     `yaml:"console,omitempty"`
	Resources  []ResourceConfig  `yaml:"resources,omitempty"`
	LocalState *LocalStateConfig `yaml:"localState,omitempty"`
	Events     *EventsConfig     `yaml:"events,omitempty"`
	Telemetry  *telemetry.Config `yaml:"telemetry,omitempty"`
}

// BackendConfig defines how the console reaches the REST backend
type BackendConfig struct {
	// BaseURL is the backend origin; resource paths are appended under /api
	BaseURL string `yaml:"baseURL"`

	// Token is sent as a bearer token when set. TokenFile takes precedence.
	Token     string `yaml:"token,omitempty"`
	TokenFile string `yaml:"tokenFile,omitempty"`

	// Timeout is a duration string such as "10s"
	Timeout string `yaml:"timeout,omitempty"`

	// RateLimit caps requests per second, zero disables limiting
	RateLimit float64 `yaml:"rateLimit,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`

	// AssetBaseURL resolves relative image paths
	AssetBaseURL string `yaml:"assetBaseURL,omitempty"`
}

// ConsoleConfig defines the behavior of the interactive console
type ConsoleConfig struct {
	PageSize int    `yaml:"pageSize,omitempty"`
	Locale   string `yaml:"locale,omitempty"`
	// Debounce is the window in which background refresh requests are merged
	Debounce string `yaml:"debounce,omitempty"`
	// Screens selects the visible screens
	Screens filtering.Rules `yaml:"screens,omitempty"`
}

// LocalStateConfig selects the fallback cache store
type LocalStateConfig struct {
	Backend  string `yaml:"backend,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Address  string `yaml:"address,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// EventsConfig selects the cross-screen event bus
type EventsConfig struct {
	Backend       string `yaml:"backend,omitempty"`
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subjectPrefix,omitempty"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Backend: BackendConfig{BaseURL: DefaultBaseURL},
	}
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := c.Backend.validate(); err != nil {
		return err
	}
	if err := c.Console.validate(); err != nil {
		return err
	}
	if err := c.validateResources(); err != nil {
		return err
	}
	if err := c.LocalState.validate(); err != nil {
		return err
	}
	if err := c.Events.validate(); err != nil {
		return err
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}

func (b *BackendConfig) validate() error {
	if b.BaseURL == "" {
		return fmt.Errorf("backend.baseURL is required")
	}
	u, err := url.Parse(b.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.baseURL must be an absolute URL, got %q", b.BaseURL)
	}
	if b.Timeout != "" {
		if _, err := time.ParseDuration(b.Timeout); err != nil {
			return fmt.Errorf("backend.timeout must be a valid duration (e.g., '10s'): %w", err)
		}
	}
	if b.RateLimit < 0 {
		return fmt.Errorf("backend.rateLimit must not be negative")
	}
	if b.Burst < 0 {
		return fmt.Errorf("backend.burst must not be negative")
	}
	return nil
}

func (c *ConsoleConfig) validate() error {
	if c.PageSize < 0 {
		return fmt.Errorf("console.pageSize must be positive")
	}
	if c.Debounce != "" {
		if _, err := time.ParseDuration(c.Debounce); err != nil {
			return fmt.Errorf("console.debounce must be a valid duration: %w", err)
		}
	}
	if err := c.Screens.Validate(); err != nil {
		return fmt.Errorf("console.screens: %w", err)
	}
	return nil
}

func (l *LocalStateConfig) validate() error {
	if l == nil {
		return nil
	}
	switch strings.ToLower(l.Backend) {
	case "", localstate.BackendFile, localstate.BackendSQLite, localstate.BackendNone:
	case localstate.BackendRedis:
		if l.Address == "" {
			return fmt.Errorf("localState.address is required for the redis backend")
		}
	default:
		return fmt.Errorf("localState.backend must be one of file, sqlite, redis, none; got %q", l.Backend)
	}
	return nil
}

func (e *EventsConfig) validate() error {
	if e == nil {
		return nil
	}
	switch e.Backend {
	case "", EventsLocal:
	case EventsNATS:
		if e.URL == "" {
			return fmt.Errorf("events.url is required for the nats backend")
		}
	default:
		return fmt.Errorf("events.backend must be local or nats, got %q", e.Backend)
	}
	return nil
}

// GetTimeout returns the backend timeout, defaulting to DefaultTimeout
func (b *BackendConfig) GetTimeout() time.Duration {
	if d, err := time.ParseDuration(b.Timeout); err == nil && d > 0 {
		return d
	}
	return DefaultTimeout
}

// GetToken returns the bearer token using the following priority:
// 1. Read from TokenFile if specified
// 2. The inline Token
func (b *BackendConfig) GetToken() (string, error) {
	if b.TokenFile != "" {
		data, err := os.ReadFile(filepath.Clean(b.TokenFile))
		if err != nil {
			return "", fmt.Errorf("failed to read token from file %s: %w", b.TokenFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return b.Token, nil
}

// GetPageSize returns the console page size
func (c *ConsoleConfig) GetPageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return DefaultPageSize
}

// GetLocale returns the sort locale
func (c *ConsoleConfig) GetLocale() string {
	if c.Locale == "" {
		return DefaultLocale
	}
	return c.Locale
}

// GetDebounce returns the reconcile debounce window, zero when unset
func (c *ConsoleConfig) GetDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Debounce)
	return d
}

// GetLocalState returns the local state options, defaulting to a file store
// under $XDG_STATE_HOME/bo-console
func (c *Config) GetLocalState() localstate.Options {
	opts := localstate.Options{Backend: localstate.BackendFile}
	if c.LocalState != nil {
		opts = localstate.Options{
			Backend:  c.LocalState.Backend,
			Path:     c.LocalState.Path,
			Address:  c.LocalState.Address,
			Password: c.LocalState.Password,
			DB:       c.LocalState.DB,
			Prefix:   c.LocalState.Prefix,
		}
	}
	if opts.Path == "" && (opts.Backend == "" || opts.Backend == localstate.BackendFile || opts.Backend == localstate.BackendSQLite) {
		opts.Path = filepath.Join(xdg.StateHome, DefaultStateDir)
		if opts.Backend == localstate.BackendSQLite {
			opts.Path = filepath.Join(opts.Path, "state.db")
		}
	}
	return opts
}

// GetEventsBackend returns the configured bus backend
func (c *Config) GetEventsBackend() string {
	if c.Events == nil || c.Events.Backend == "" {
		return EventsLocal
	}
	return c.Events.Backend
}

// ErrUnknownResource is returned by Resource for names missing from the catalog
var ErrUnknownResource = errors.New("unknown resource")

// Resource returns the effective configuration of one resource
func (c *Config) Resource(name string) (ResourceConfig, error) {
	for _, r := range c.EffectiveResources() {
		if r.Name == name {
			return r, nil
		}
	}
	return ResourceConfig{}, fmt.Errorf("%w: %s", ErrUnknownResource, name)
}
