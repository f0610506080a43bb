// Package observe provides application-wide observability primitives for
// Auricle: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Auricle metrics.
const meterName = "github.com/auricle-ai/auricle"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CaptureDuration tracks how long command recordings last, from wake
	// trigger to end of capture.
	CaptureDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text latency.
	TranscriptionDuration metric.Float64Histogram

	// ReasoningDuration tracks LLM completion latency.
	ReasoningDuration metric.Float64Histogram

	// SynthesisDuration tracks text-to-speech latency.
	SynthesisDuration metric.Float64Histogram

	// InteractionDuration tracks the whole wake-to-reply pipeline.
	InteractionDuration metric.Float64Histogram

	// --- Counters ---

	// WakeDetections counts wake-phrase triggers. Use with attribute:
	//   attribute.String("match", "exact"|"fuzzy")
	WakeDetections metric.Int64Counter

	// StateTransitions counts pipeline state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// ConsumerSwaps counts audio router consumer handoffs.
	ConsumerSwaps metric.Int64Counter

	// EmptyCaptures counts recordings discarded as silence or too short.
	EmptyCaptures metric.Int64Counter

	// --- Error counters ---

	// StageErrors counts pipeline stage failures. Use with attribute:
	//   attribute.String("stage", "capture"|"transcribe"|"reason"|"synthesize"|"play")
	StageErrors metric.Int64Counter

	// --- Gauges ---

	// AudioLevel records the most recent frame RMS on a [0, 1] scale.
	AudioLevel metric.Float64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CaptureDuration, err = m.Float64Histogram("auricle.capture.duration",
		metric.WithDescription("Duration of command recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("auricle.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReasoningDuration, err = m.Float64Histogram("auricle.reasoning.duration",
		metric.WithDescription("Latency of LLM completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("auricle.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InteractionDuration, err = m.Float64Histogram("auricle.interaction.duration",
		metric.WithDescription("End-to-end wake-to-reply latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeDetections, err = m.Int64Counter("auricle.wake.detections",
		metric.WithDescription("Total wake-phrase triggers by match kind."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("auricle.state.transitions",
		metric.WithDescription("Total pipeline state transitions by from and to state."),
	); err != nil {
		return nil, err
	}
	if met.ConsumerSwaps, err = m.Int64Counter("auricle.audio.consumer_swaps",
		metric.WithDescription("Total audio router consumer handoffs."),
	); err != nil {
		return nil, err
	}
	if met.EmptyCaptures, err = m.Int64Counter("auricle.capture.empty",
		metric.WithDescription("Total command recordings discarded as silence."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.StageErrors, err = m.Int64Counter("auricle.stage.errors",
		metric.WithDescription("Total pipeline stage failures by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.AudioLevel, err = m.Float64Gauge("auricle.audio.level",
		metric.WithDescription("Most recent frame RMS on a [0, 1] scale."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("auricle.http.request.duration",
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

// RecordWakeDetection records a wake trigger with its match kind.
func (m *Metrics) RecordWakeDetection(ctx context.Context, match string) {
	m.WakeDetections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("match", match)),
	)
}

// RecordStateTransition records one pipeline state change.
func (m *Metrics) RecordStateTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordStageError records a pipeline stage failure.
func (m *Metrics) RecordStageError(ctx context.Context, stage string) {
	m.StageErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
