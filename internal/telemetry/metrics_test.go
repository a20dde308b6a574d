package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader, scopeName string) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]metricdata.Aggregation{}
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != scopeName {
			continue
		}
		for _, m := range scope.Metrics {
			found[m.Name] = m.Data
		}
	}
	return found
}

func TestNewCollectionMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewCollectionMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("nil metrics are safe to use", func(t *testing.T) {
		t.Parallel()

		var metrics *CollectionMetrics
		metrics.RecordFetch(context.Background(), "menus", time.Second, true)
		metrics.RecordStaleDiscard(context.Background(), "menus")
		metrics.RecordMutation(context.Background(), "menus", "create", false)
		metrics.RecordTotal(context.Background(), "menus", 3)
	})
}

func TestCollectionMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewCollectionMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordFetch(ctx, "menus", 120*time.Millisecond, true)
	metrics.RecordStaleDiscard(ctx, "menus")
	metrics.RecordStaleDiscard(ctx, "menus")
	metrics.RecordMutation(ctx, "menus", "delete", true)
	metrics.RecordTotal(ctx, "menus", 42)

	found := collect(t, reader, CollectionMetricsMeterName)

	hist, ok := found["bo_console_fetch_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)

	stale, ok := found["bo_console_stale_responses_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, stale.DataPoints, 1)
	assert.Equal(t, int64(2), stale.DataPoints[0].Value)

	mutations, ok := found["bo_console_mutations_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, mutations.DataPoints, 1)
	kind, _ := mutations.DataPoints[0].Attributes.Value("kind")
	assert.Equal(t, "delete", kind.AsString())

	total, ok := found["bo_console_collection_items_total"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, total.DataPoints, 1)
	assert.Equal(t, int64(42), total.DataPoints[0].Value)
}

func TestReconcileMetrics_RecordRefresh(t *testing.T) {
	t.Parallel()

	var nilMetrics *ReconcileMetrics
	nilMetrics.RecordRefresh(context.Background(), "menus", "mutation", time.Second, true)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewReconcileMetrics(mp)
	require.NoError(t, err)

	metrics.RecordRefresh(context.Background(), "menus", "interval", 2*time.Second, false)

	found := collect(t, reader, ReconcileMetricsMeterName)
	hist, ok := found["bo_console_refresh_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.InDelta(t, 2.0, hist.DataPoints[0].Sum, 0.001)
}
