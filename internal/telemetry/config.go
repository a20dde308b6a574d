// Package telemetry provides OpenTelemetry instrumentation for the back-office console.
// Spans and metrics are pushed over OTLP/HTTP; the mock backend can instead expose its
// metrics through a Prometheus registry it serves on /metrics.
package telemetry

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultServiceName identifies console processes
	DefaultServiceName = "bo-console"
	// DefaultEndpoint is the OTLP/HTTP collector address
	DefaultEndpoint = "localhost:4318"
	// DefaultSampling keeps 5% of root traces
	DefaultSampling = 0.05
	// DefaultMetricsInterval is the OTLP push interval
	DefaultMetricsInterval = 60 * time.Second

	unknownVersion = "unknown"
)

// Config is the telemetry section of the console configuration
type Config struct {
	// Enabled switches every provider on; when false nothing is exported
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`
	// Endpoint is host:port of the OTLP/HTTP collector
	Endpoint string         `yaml:"endpoint,omitempty"`
	Insecure bool           `yaml:"insecure,omitempty"`
	Tracing  *TracingConfig `yaml:"tracing,omitempty"`
	Metrics  *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Sampling is the ratio of root traces kept, 0 means DefaultSampling
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls metric export
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Prometheus collects into a Prometheus registry instead of pushing over OTLP
	Prometheus bool `yaml:"prometheus,omitempty"`
	// Interval is the OTLP push interval, e.g. "30s"
	Interval string `yaml:"interval,omitempty"`
}

// GetServiceName returns the service name or DefaultServiceName
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the service version or "unknown"
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return unknownVersion
	}
	return c.ServiceVersion
}

// GetEndpoint returns the collector endpoint or DefaultEndpoint
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *Config) tracingEnabled() bool {
	return c.Tracing != nil && c.Tracing.Enabled
}

func (c *Config) metricsEnabled() bool {
	return c.Metrics != nil && c.Metrics.Enabled
}

// GetSampling returns the sampling ratio; zero reads as unset
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0 {
		return DefaultSampling
	}
	return c.Sampling
}

// GetInterval returns the push interval or DefaultMetricsInterval
func (c *MetricsConfig) GetInterval() time.Duration {
	if d, err := time.ParseDuration(c.Interval); err == nil && d > 0 {
		return d
	}
	return DefaultMetricsInterval
}

// Validate checks the enabled sections. A nil or disabled config is valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	var errs []error
	if c.tracingEnabled() && (c.Tracing.Sampling < 0 || c.Tracing.Sampling > 1) {
		errs = append(errs, fmt.Errorf("tracing: sampling must be between 0.0 and 1.0, got %f", c.Tracing.Sampling))
	}
	if c.metricsEnabled() && c.Metrics.Interval != "" {
		if d, err := time.ParseDuration(c.Metrics.Interval); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("metrics: interval must be a positive duration, got %q", c.Metrics.Interval))
		}
	}
	return errors.Join(errs...)
}
