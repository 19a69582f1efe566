package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// RegisterGauges wires the three observable gauges to their source
// callbacks: uploadSeqLag = latest_seq() - last_upload_seq, checkpointAge
// in seconds since the last snapshot, and jobQueueDepth across every job
// status the caller cares to report. Callbacks run on the OTel SDK's own
// collection goroutine, not on any write/read path.
func (m *Metrics) RegisterGauges(
	uploadSeqLag func() int64,
	checkpointAgeSeconds func() float64,
	jobQueueDepth func() int64,
) error {
	_, err := m.provider.Meter("github.com/cubestore/metastore").RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(m.UploadSeqLag, uploadSeqLag())
			o.ObserveFloat64(m.CheckpointAgeSecs, checkpointAgeSeconds())
			o.ObserveInt64(m.JobQueueDepth, jobQueueDepth())
			return nil
		},
		m.UploadSeqLag, m.CheckpointAgeSecs, m.JobQueueDepth,
	)
	return err
}
