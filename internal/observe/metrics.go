// Package observe records pipeline metrics through the OpenTelemetry Metrics
// API. The daemon exports them on /metrics through the Prometheus bridge in
// [InitProvider]; tests build [Metrics] on a ManualReader-backed provider.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every eventscan metric.
const meterName = "eventscan"

// Job statuses used with [Metrics.JobFinished].
const (
	JobSucceeded = "ok"
	JobFailed    = "error"
	JobRejected  = "rejected"
)

// Metrics holds the instruments. Safe for concurrent use.
type Metrics struct {
	// PipelineDuration tracks time per stage. Attribute: stage.
	PipelineDuration metric.Float64Histogram

	// Windows counts windows sent to the classifier. Attribute: backend.
	Windows metric.Int64Counter

	// Segments counts segments in finished results.
	Segments metric.Int64Counter

	// Jobs counts daemon jobs. Attribute: status.
	Jobs metric.Int64Counter

	// QueueDepth tracks jobs waiting in the daemon queue.
	QueueDepth metric.Int64UpDownCounter
}

var stageBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PipelineDuration, err = m.Float64Histogram("eventscan.pipeline.duration",
		metric.WithDescription("Time spent in each pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Windows, err = m.Int64Counter("eventscan.windows.classified",
		metric.WithDescription("Windows scored by the classifier."),
		metric.WithUnit("{window}"),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("eventscan.segments.detected",
		metric.WithDescription("Segments reported in detection results."),
		metric.WithUnit("{segment}"),
	); err != nil {
		return nil, err
	}
	if met.Jobs, err = m.Int64Counter("eventscan.jobs",
		metric.WithDescription("Daemon jobs by final status."),
		metric.WithUnit("{job}"),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("eventscan.jobs.queued",
		metric.WithDescription("Jobs waiting for the detection worker."),
		metric.WithUnit("{job}"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// StageDuration records how long a pipeline stage took.
func (m *Metrics) StageDuration(ctx context.Context, stage string, d time.Duration) {
	m.PipelineDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// WindowsClassified adds n windows scored on backend.
func (m *Metrics) WindowsClassified(ctx context.Context, backend string, n int) {
	m.Windows.Add(ctx, int64(n), metric.WithAttributes(attribute.String("backend", backend)))
}

// SegmentsDetected adds n segments.
func (m *Metrics) SegmentsDetected(ctx context.Context, n int) {
	m.Segments.Add(ctx, int64(n))
}

// JobFinished counts one job with the given status.
func (m *Metrics) JobFinished(ctx context.Context, status string) {
	m.Jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// Queued moves the queue depth gauge by delta.
func (m *Metrics) Queued(ctx context.Context, delta int) {
	m.QueueDepth.Add(ctx, int64(delta))
}
