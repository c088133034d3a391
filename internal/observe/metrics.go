// Package observe provides application-wide observability primitives for
// Voxgate: OpenTelemetry metrics, tracing helpers, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxgate metrics.
const meterName = "github.com/voxgate/voxgate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesProcessed counts classified frames. Use with attribute:
	//   attribute.Bool("speech", ...)
	FramesProcessed metric.Int64Counter

	// SpeechOnsets counts confirmed speech starts, including continuation
	// segments after a forced cut.
	SpeechOnsets metric.Int64Counter

	// SegmentsProduced counts finalized segments. Use with attribute:
	//   attribute.String("reason", "silence"|"max_duration")
	SegmentsProduced metric.Int64Counter

	// SegmentDuration tracks finalized segment durations in seconds. Use
	// with the same "reason" attribute as SegmentsProduced.
	SegmentDuration metric.Float64Histogram

	// SilenceAlarms counts prolonged-silence notifications.
	SilenceAlarms metric.Int64Counter

	// IngestBytes counts raw audio bytes accepted from stream clients.
	IngestBytes metric.Int64Counter

	// ActiveStreams tracks the number of currently open detector streams.
	ActiveStreams metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// segmentBuckets defines histogram bucket boundaries (in seconds) spanning
// the plausible segment duration range up to the force-cut cap.
var segmentBuckets = []float64{
	0.25, 0.5, 1, 1.5, 2, 2.5, 3, 4, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("voxgate.frames.processed",
		metric.WithDescription("Total classified audio frames by speech decision."),
	); err != nil {
		return nil, err
	}
	if met.SpeechOnsets, err = m.Int64Counter("voxgate.speech.onsets",
		metric.WithDescription("Total confirmed speech onsets."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsProduced, err = m.Int64Counter("voxgate.segments.produced",
		metric.WithDescription("Total finalized speech segments by reason."),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("voxgate.segment.duration",
		metric.WithDescription("Duration of finalized speech segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SilenceAlarms, err = m.Int64Counter("voxgate.silence.alarms",
		metric.WithDescription("Total prolonged-silence notifications."),
	); err != nil {
		return nil, err
	}
	if met.IngestBytes, err = m.Int64Counter("voxgate.ingest.bytes",
		metric.WithDescription("Raw audio bytes accepted from stream clients."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("voxgate.active_streams",
		metric.WithDescription("Number of currently open detector streams."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxgate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrame records one classified frame with its speech decision.
func (m *Metrics) RecordFrame(ctx context.Context, speech bool) {
	m.FramesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("speech", speech)),
	)
}

// RecordSegment records a finalized segment and its duration.
func (m *Metrics) RecordSegment(ctx context.Context, reason string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.SegmentsProduced.Add(ctx, 1, attrs)
	m.SegmentDuration.Record(ctx, seconds, attrs)
}
