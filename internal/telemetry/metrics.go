package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// CollectionMetricsMeterName is the meter used by the collection synchronizer and coordinator
	CollectionMetricsMeterName = "github.com/stacklok/backoffice-console/collection"

	// ReconcileMetricsMeterName is the meter used by the background reconciler
	ReconcileMetricsMeterName = "github.com/stacklok/backoffice-console/reconcile"
)

// CollectionMetrics holds the instruments for list fetches and mutations
type CollectionMetrics struct {
	fetchDuration  metric.Float64Histogram
	staleDiscards  metric.Int64Counter
	mutationsTotal metric.Int64Counter
	itemsTotal     metric.Int64Gauge
}

// NewCollectionMetrics creates a new CollectionMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCollectionMetrics(provider metric.MeterProvider) (*CollectionMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CollectionMetricsMeterName)

	fetchDuration, err := meter.Float64Histogram(
		"bo_console_fetch_duration_seconds",
		metric.WithDescription("Duration of collection list fetches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	staleDiscards, err := meter.Int64Counter(
		"bo_console_stale_responses_total",
		metric.WithDescription("List responses discarded because a newer fetch superseded them"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	mutationsTotal, err := meter.Int64Counter(
		"bo_console_mutations_total",
		metric.WithDescription("Create, update, delete and upload operations by outcome"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, err
	}

	itemsTotal, err := meter.Int64Gauge(
		"bo_console_collection_items_total",
		metric.WithDescription("Server-reported total of each collection"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	return &CollectionMetrics{
		fetchDuration:  fetchDuration,
		staleDiscards:  staleDiscards,
		mutationsTotal: mutationsTotal,
		itemsTotal:     itemsTotal,
	}, nil
}

// RecordFetch records the duration and outcome of a list fetch
func (m *CollectionMetrics) RecordFetch(ctx context.Context, resource string, duration time.Duration, success bool) {
	if m == nil || m.fetchDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("resource", resource),
		attribute.Bool("success", success),
	}

	m.fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordStaleDiscard counts a response dropped by the sequence check
func (m *CollectionMetrics) RecordStaleDiscard(ctx context.Context, resource string) {
	if m == nil || m.staleDiscards == nil {
		return
	}
	m.staleDiscards.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

// RecordMutation counts a finished mutation
func (m *CollectionMetrics) RecordMutation(ctx context.Context, resource, kind string, success bool) {
	if m == nil || m.mutationsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("resource", resource),
		attribute.String("kind", kind),
		attribute.Bool("success", success),
	}

	m.mutationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTotal records the server-reported collection total
func (m *CollectionMetrics) RecordTotal(ctx context.Context, resource string, total int) {
	if m == nil || m.itemsTotal == nil {
		return
	}
	m.itemsTotal.Record(ctx, int64(total), metric.WithAttributes(attribute.String("resource", resource)))
}

// ReconcileMetrics holds the instruments for background refresh cycles
type ReconcileMetrics struct {
	refreshDuration metric.Float64Histogram
}

// NewReconcileMetrics creates a new ReconcileMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewReconcileMetrics(provider metric.MeterProvider) (*ReconcileMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(ReconcileMetricsMeterName)

	refreshDuration, err := meter.Float64Histogram(
		"bo_console_refresh_duration_seconds",
		metric.WithDescription("Duration of background reconcile refreshes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	return &ReconcileMetrics{refreshDuration: refreshDuration}, nil
}

// RecordRefresh records a reconcile refresh
func (m *ReconcileMetrics) RecordRefresh(ctx context.Context, resource, reason string, duration time.Duration, success bool) {
	if m == nil || m.refreshDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("resource", resource),
		attribute.String("reason", reason),
		attribute.Bool("success", success),
	}

	m.refreshDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
