// Package metrics wires the ambient OTel counters/gauges this codebase
// carries regardless of domain scope (spec §4.M): operation counts and
// latency, row mutation counts, durability pipeline lag, and job queue
// depth. None of it is part of the domain contract in package catalog —
// upper layers never read from here, they only feed it.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds every instrument the metastore process reports.
type Metrics struct {
	WriteOpCount    metric.Int64Counter
	WriteOpDuration metric.Float64Histogram
	ReadOpCount     metric.Int64Counter
	ReadOpDuration  metric.Float64Histogram

	RowsInserted metric.Int64Counter
	RowsUpdated  metric.Int64Counter
	RowsDeleted  metric.Int64Counter

	UploadSeqLag      metric.Int64ObservableGauge
	CheckpointAgeSecs metric.Float64ObservableGauge
	JobQueueDepth     metric.Int64ObservableGauge

	provider *sdkmetric.MeterProvider
}

// New builds a MeterProvider with the stdout exporter (the default this
// module ships; production deployments can substitute an OTLP exporter
// without touching instrument call sites) and registers every instrument.
func New() (*Metrics, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	meter := provider.Meter("github.com/cubestore/metastore")

	m := &Metrics{provider: provider}

	m.WriteOpCount, err = meter.Int64Counter("metastore.write_operation.count")
	if err != nil {
		return nil, err
	}
	m.WriteOpDuration, err = meter.Float64Histogram("metastore.write_operation.duration_seconds")
	if err != nil {
		return nil, err
	}
	m.ReadOpCount, err = meter.Int64Counter("metastore.read_operation.count")
	if err != nil {
		return nil, err
	}
	m.ReadOpDuration, err = meter.Float64Histogram("metastore.read_operation.duration_seconds")
	if err != nil {
		return nil, err
	}
	m.RowsInserted, err = meter.Int64Counter("metastore.rows_inserted")
	if err != nil {
		return nil, err
	}
	m.RowsUpdated, err = meter.Int64Counter("metastore.rows_updated")
	if err != nil {
		return nil, err
	}
	m.RowsDeleted, err = meter.Int64Counter("metastore.rows_deleted")
	if err != nil {
		return nil, err
	}
	m.UploadSeqLag, err = meter.Int64ObservableGauge("metastore.durability.upload_seq_lag")
	if err != nil {
		return nil, err
	}
	m.CheckpointAgeSecs, err = meter.Float64ObservableGauge("metastore.durability.checkpoint_age_seconds")
	if err != nil {
		return nil, err
	}
	m.JobQueueDepth, err = meter.Int64ObservableGauge("metastore.jobs.queue_depth")
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordReadOperation implements txn.OperationRecorder.
func (m *Metrics) RecordReadOperation(ctx context.Context, d time.Duration) {
	m.ReadOpCount.Add(ctx, 1)
	m.ReadOpDuration.Record(ctx, d.Seconds())
}

// RecordWriteOperation implements txn.OperationRecorder.
func (m *Metrics) RecordWriteOperation(ctx context.Context, d time.Duration) {
	m.WriteOpCount.Add(ctx, 1)
	m.WriteOpDuration.Record(ctx, d.Seconds())
}

// Shutdown flushes and closes the underlying MeterProvider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// LogStartup is a one-line breadcrumb in the teacher's style: a plain
// slog.Info call, not a dedicated event bus of its own.
func LogStartup(logger *slog.Logger, exporterName string) {
	logger.Info("metrics exporter initialized", "exporter", exporterName)
}
