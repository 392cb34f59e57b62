// Package observe provides application-wide observability primitives for
// Palaver: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Palaver metrics.
const meterName = "github.com/palaverhq/palaver"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// RunDuration tracks end-to-end clustering run latency. Use with
	// attributes:
	//   attribute.String("op", ...), attribute.String("outcome", ...)
	RunDuration metric.Float64Histogram

	// GatewayDuration tracks completion-gateway call latency per batch.
	GatewayDuration metric.Float64Histogram

	// --- Counters ---

	// Runs counts clustering runs. Use with attributes:
	//   attribute.String("op", ...), attribute.String("outcome", ...)
	Runs metric.Int64Counter

	// Batches counts planned batches across all runs.
	Batches metric.Int64Counter

	// FallbackClusters counts batches that degraded to a synthesized
	// fallback cluster.
	FallbackClusters metric.Int64Counter

	// TranscriptsClustered counts transcripts covered by completed runs.
	TranscriptsClustered metric.Int64Counter

	// GatewayRequests counts completion-gateway calls. Use with attribute:
	//   attribute.String("status", ...)
	GatewayRequests metric.Int64Counter

	// --- Gauges ---

	// ActiveRuns tracks the number of clustering runs currently in flight.
	ActiveRuns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// gatewayBuckets defines histogram bucket boundaries (in seconds) for single
// completion calls, which normally finish within tens of seconds.
var gatewayBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// runBuckets defines histogram bucket boundaries (in seconds) for whole
// clustering runs, which chain several completion calls with pauses between
// them and can take minutes on busy days.
var runBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RunDuration, err = m.Float64Histogram("palaver.cluster.run.duration",
		metric.WithDescription("End-to-end latency of clustering runs by operation and outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(runBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GatewayDuration, err = m.Float64Histogram("palaver.gateway.duration",
		metric.WithDescription("Latency of completion-gateway calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(gatewayBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Runs, err = m.Int64Counter("palaver.cluster.runs",
		metric.WithDescription("Total clustering runs by operation and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Batches, err = m.Int64Counter("palaver.cluster.batches",
		metric.WithDescription("Total batches planned across all clustering runs."),
	); err != nil {
		return nil, err
	}
	if met.FallbackClusters, err = m.Int64Counter("palaver.cluster.fallbacks",
		metric.WithDescription("Total batches that degraded to a synthesized fallback cluster."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptsClustered, err = m.Int64Counter("palaver.cluster.transcripts",
		metric.WithDescription("Total transcripts covered by completed clustering runs."),
	); err != nil {
		return nil, err
	}
	if met.GatewayRequests, err = m.Int64Counter("palaver.gateway.requests",
		metric.WithDescription("Total completion-gateway calls by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRuns, err = m.Int64UpDownCounter("palaver.cluster.active_runs",
		metric.WithDescription("Number of clustering runs currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("palaver.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRun is a convenience method that records one clustering run with the
// standard attribute set.
func (m *Metrics) RecordRun(ctx context.Context, op, outcome string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	m.Runs.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, seconds, attrs)
}

// RecordGatewayRequest is a convenience method that records one
// completion-gateway call.
func (m *Metrics) RecordGatewayRequest(ctx context.Context, status string, seconds float64) {
	m.GatewayRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.GatewayDuration.Record(ctx, seconds)
}

// RecordBatchOutcomes is a convenience method that records the batch and
// fallback tallies of one completed run.
func (m *Metrics) RecordBatchOutcomes(ctx context.Context, batches, fallbacks, transcripts int) {
	m.Batches.Add(ctx, int64(batches))
	if fallbacks > 0 {
		m.FallbackClusters.Add(ctx, int64(fallbacks))
	}
	m.TranscriptsClustered.Add(ctx, int64(transcripts))
}
