// Package telemetry provides OpenTelemetry instrumentation for the sync
// server.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/syncmesh/syncmesh-server/sync"

	// SupervisorMetricsMeterName is the name used for the supervisor metrics meter
	SupervisorMetricsMeterName = "github.com/syncmesh/syncmesh-server/supervisor"
)

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	syncDuration   metric.Float64Histogram
	conflictsTotal metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter
// provider. If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"syncmesh_sync_duration_seconds",
		metric.WithDescription("Duration of synchronize operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	conflictsTotal, err := meter.Int64Counter(
		"syncmesh_sync_conflicts_total",
		metric.WithDescription("Number of sync conflicts detected"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:   syncDuration,
		conflictsTotal: conflictsTotal,
	}, nil
}

// RecordSyncDuration records the duration of a synchronize call toward an instance
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, instanceID string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("instance", instanceID),
		attribute.Bool("success", success),
	}
	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordConflict counts a detected conflict and its resolution
func (m *SyncMetrics) RecordConflict(ctx context.Context, instanceID, resolution string) {
	if m == nil || m.conflictsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("instance", instanceID),
		attribute.String("resolution", resolution),
	}
	m.conflictsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// SupervisorMetrics holds the OpenTelemetry instruments for reconnection metrics
type SupervisorMetrics struct {
	probesTotal    metric.Int64Counter
	endpointStatus metric.Int64Gauge
}

// NewSupervisorMetrics creates a new SupervisorMetrics instance with the
// given meter provider. If provider is nil, it returns nil (no-op metrics).
func NewSupervisorMetrics(provider metric.MeterProvider) (*SupervisorMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SupervisorMetricsMeterName)

	probesTotal, err := meter.Int64Counter(
		"syncmesh_endpoint_probes_total",
		metric.WithDescription("Number of endpoint probes issued"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return nil, err
	}

	endpointStatus, err := meter.Int64Gauge(
		"syncmesh_endpoint_up",
		metric.WithDescription("Whether the endpoint is connected (1) or not (0)"),
	)
	if err != nil {
		return nil, err
	}

	return &SupervisorMetrics{
		probesTotal:    probesTotal,
		endpointStatus: endpointStatus,
	}, nil
}

// RecordProbe counts one probe against an endpoint
func (m *SupervisorMetrics) RecordProbe(ctx context.Context, endpointID string, success bool) {
	if m == nil || m.probesTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("endpoint", endpointID),
		attribute.Bool("success", success),
	}
	m.probesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEndpointUp records whether an endpoint is currently connected
func (m *SupervisorMetrics) RecordEndpointUp(ctx context.Context, endpointID string, up bool) {
	if m == nil || m.endpointStatus == nil {
		return
	}

	value := int64(0)
	if up {
		value = 1
	}
	m.endpointStatus.Record(ctx, value, metric.WithAttributes(
		attribute.String("endpoint", endpointID)))
}
