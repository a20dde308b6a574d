package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, DefaultServiceName, cfg.GetServiceName())
	assert.Equal(t, "unknown", cfg.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, cfg.GetEndpoint())
	assert.InDelta(t, DefaultSampling, (&TracingConfig{}).GetSampling(), 0.0001)
	assert.InDelta(t, 0.5, (&TracingConfig{Sampling: 0.5}).GetSampling(), 0.0001)
	assert.Equal(t, DefaultMetricsInterval, (&MetricsConfig{}).GetInterval())
	assert.Equal(t, 15*time.Second, (&MetricsConfig{Interval: "15s"}).GetInterval())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "nil config", cfg: nil},
		{name: "disabled ignores bad sampling", cfg: &Config{Tracing: &TracingConfig{Enabled: true, Sampling: 3}}},
		{name: "valid sampling", cfg: &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 0.2}}},
		{name: "sampling above one", cfg: &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1.5}}, wantErr: true},
		{name: "negative sampling", cfg: &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: -0.1}}, wantErr: true},
		{name: "push interval", cfg: &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Interval: "15s"}}},
		{name: "bad push interval", cfg: &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Interval: "soon"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNew_DisabledUsesNoOp(t *testing.T) {
	t.Parallel()

	tel, err := New(context.Background(), WithTelemetryConfig(&Config{Enabled: false}))
	require.NoError(t, err)

	_, isNoopTracer := tel.TracerProvider().(tracenoop.TracerProvider)
	assert.True(t, isNoopTracer)
	_, isNoopMeter := tel.MeterProvider().(metricnoop.MeterProvider)
	assert.True(t, isNoopMeter)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_PrometheusMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	tel, err := New(context.Background(),
		WithTelemetryConfig(&Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Prometheus: true}}),
		WithRegisterer(reg),
	)
	require.NoError(t, err)
	defer func() { _ = tel.Shutdown(context.Background()) }()

	_, isSDKMeter := tel.MeterProvider().(*sdkmetric.MeterProvider)
	require.True(t, isSDKMeter)
	_, isNoopTracer := tel.TracerProvider().(tracenoop.TracerProvider)
	assert.True(t, isNoopTracer, "tracing stays off unless enabled")

	metrics, err := NewCollectionMetrics(tel.MeterProvider())
	require.NoError(t, err)
	metrics.RecordStaleDiscard(context.Background(), "menus")

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "bo_console_stale_responses_total")
}

func TestNew_TracingWithSpanExporter(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tel, err := New(context.Background(),
		WithTelemetryConfig(&Config{
			Enabled:     true,
			ServiceName: "console-test",
			Tracing:     &TracingConfig{Enabled: true, Sampling: 1},
		}),
		WithSpanExporter(exporter),
	)
	require.NoError(t, err)

	_, span := tel.Tracer("test").Start(context.Background(), "collection.Apply")
	span.End()

	tp, ok := tel.TracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "collection.Apply", spans[0].Name)

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()), "second shutdown is a no-op")
}
