package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newManualProvider(t *testing.T) (*metric.MeterProvider, *metric.ManualReader) {
	t.Helper()

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, reader
}

func collectMetricNames(t *testing.T, reader *metric.ManualReader) map[string]bool {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestNewSyncMetricsNilProvider(t *testing.T) {
	t.Parallel()

	m, err := NewSyncMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// Nil receivers are safe no-ops
	m.RecordSyncDuration(context.Background(), "inst-1", time.Second, true)
	m.RecordConflict(context.Background(), "inst-1", "source_wins")
}

func TestNewSupervisorMetricsNilProvider(t *testing.T) {
	t.Parallel()

	m, err := NewSupervisorMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m.RecordProbe(context.Background(), "ep-1", false)
	m.RecordEndpointUp(context.Background(), "ep-1", true)
}

func TestSyncMetricsRecord(t *testing.T) {
	t.Parallel()

	provider, reader := newManualProvider(t)
	m, err := NewSyncMetrics(provider)
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	m.RecordSyncDuration(ctx, "inst-1", 250*time.Millisecond, true)
	m.RecordSyncDuration(ctx, "inst-1", 2*time.Second, false)
	m.RecordConflict(ctx, "inst-1", "manual")

	names := collectMetricNames(t, reader)
	assert.True(t, names["syncmesh_sync_duration_seconds"])
	assert.True(t, names["syncmesh_sync_conflicts_total"])
}

func TestSupervisorMetricsRecord(t *testing.T) {
	t.Parallel()

	provider, reader := newManualProvider(t)
	m, err := NewSupervisorMetrics(provider)
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	m.RecordProbe(ctx, "ep-1", true)
	m.RecordProbe(ctx, "ep-1", false)
	m.RecordEndpointUp(ctx, "ep-1", false)

	names := collectMetricNames(t, reader)
	assert.True(t, names["syncmesh_endpoint_probes_total"])
	assert.True(t, names["syncmesh_endpoint_up"])
}
