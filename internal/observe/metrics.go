// Package observe provides application-wide observability primitives for
// sonoscribe: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all sonoscribe metrics.
const meterName = "github.com/MrWong99/sonoscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks the latency of one utterance transcription.
	STTDuration metric.Float64Histogram

	// CorrectionDuration tracks the latency of one correction call.
	CorrectionDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts gating decisions. Use with attribute:
	//   attribute.String("verdict", "emitted"|"too_quiet")
	Utterances metric.Int64Counter

	// Corrections counts applied corrections. Use with attribute:
	//   attribute.String("method", "direct"|"fuzzy")
	Corrections metric.Int64Counter

	// ProviderRequests counts STT provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// WorkerErrors counts error messages emitted by workers. Use with
	// attribute:
	//   attribute.String("kind", "fatal"|"transcribe"|"capture")
	WorkerErrors metric.Int64Counter

	// --- Gauges ---

	// AudioLevel is the last reported capture RMS.
	AudioLevel metric.Float64Gauge

	// ActiveWorkers tracks the number of running dictation workers.
	ActiveWorkers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Batch
// transcription of a few seconds of audio on CPU lands in the upper range.
var latencyBuckets = []float64{
	0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("sonoscribe.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CorrectionDuration, err = m.Float64Histogram("sonoscribe.correction.duration",
		metric.WithDescription("Latency of dictionary correction per transcript line."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("sonoscribe.utterances",
		metric.WithDescription("Gated audio buffers by verdict."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("sonoscribe.corrections",
		metric.WithDescription("Applied transcript corrections by method."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("sonoscribe.provider.requests",
		metric.WithDescription("Total STT provider requests by provider and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.WorkerErrors, err = m.Int64Counter("sonoscribe.worker.errors",
		metric.WithDescription("Error messages emitted by dictation workers by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.AudioLevel, err = m.Float64Gauge("sonoscribe.audio.level",
		metric.WithDescription("RMS of the most recent capture chunk."),
	); err != nil {
		return nil, err
	}
	if met.ActiveWorkers, err = m.Int64UpDownCounter("sonoscribe.active_workers",
		metric.WithDescription("Number of running dictation workers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sonoscribe.http.request.duration",
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

// RecordUtterance records one gating decision.
func (m *Metrics) RecordUtterance(ctx context.Context, verdict string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

// RecordCorrection records one applied correction.
func (m *Metrics) RecordCorrection(ctx context.Context, method string) {
	m.Corrections.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordWorkerError records one worker error message.
func (m *Metrics) RecordWorkerError(ctx context.Context, kind string) {
	m.WorkerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
