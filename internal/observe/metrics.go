// Package observe provides application-wide observability primitives for
// Parley: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Parley metrics.
const meterName = "github.com/tavernworks/parley"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// BootstrapDuration tracks session bootstrap latency against the
	// dialogue service.
	BootstrapDuration metric.Float64Histogram

	// DecodeDuration tracks audio chunk decode latency.
	DecodeDuration metric.Float64Histogram

	// PlaybackDuration tracks the length of each continuous speech span,
	// from a talking-state rise to the matching fall.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksReceived counts response chunks received from the dialogue
	// service. Use with attribute:
	//   attribute.String("character_id", ...)
	ChunksReceived metric.Int64Counter

	// ChunksDropped counts chunks discarded as sub-threshold noise or
	// stale after an interrupt. Use with attributes:
	//   attribute.String("character_id", ...), attribute.String("reason", ...)
	ChunksDropped metric.Int64Counter

	// Interrupts counts playback interruptions by character.
	Interrupts metric.Int64Counter

	// SendsFailed counts failed sends to the dialogue service. Use with
	// attributes:
	//   attribute.String("character_id", ...), attribute.String("kind", ...)
	SendsFailed metric.Int64Counter

	// --- Error counters ---

	// DecodeErrors counts chunks that failed to decode.
	DecodeErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCharacters tracks the number of bootstrapped characters.
	ActiveCharacters metric.Int64UpDownCounter

	// TalkingCharacters tracks the number of characters currently playing
	// speech.
	TalkingCharacters metric.Int64UpDownCounter

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
	if met.BootstrapDuration, err = m.Float64Histogram("parley.bootstrap.duration",
		metric.WithDescription("Latency of session bootstrap against the dialogue service."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DecodeDuration, err = m.Float64Histogram("parley.decode.duration",
		metric.WithDescription("Latency of audio chunk decoding."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("parley.playback.duration",
		metric.WithDescription("Length of each continuous speech span."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksReceived, err = m.Int64Counter("parley.chunks.received",
		metric.WithDescription("Total response chunks received by character."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("parley.chunks.dropped",
		metric.WithDescription("Total chunks discarded as noise or stale, by character and reason."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("parley.interrupts",
		metric.WithDescription("Total playback interruptions by character."),
	); err != nil {
		return nil, err
	}
	if met.SendsFailed, err = m.Int64Counter("parley.sends.failed",
		metric.WithDescription("Total failed sends to the dialogue service, by character and kind."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.DecodeErrors, err = m.Int64Counter("parley.decode.errors",
		metric.WithDescription("Total chunks that failed to decode."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCharacters, err = m.Int64UpDownCounter("parley.active_characters",
		metric.WithDescription("Number of bootstrapped characters."),
	); err != nil {
		return nil, err
	}
	if met.TalkingCharacters, err = m.Int64UpDownCounter("parley.talking_characters",
		metric.WithDescription("Number of characters currently playing speech."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("parley.http.request.duration",
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

// RecordChunkReceived records a received response chunk for a character.
func (m *Metrics) RecordChunkReceived(ctx context.Context, characterID string) {
	m.ChunksReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.String("character_id", characterID)),
	)
}

// RecordChunkDropped records a discarded chunk with the reason it was dropped
// ("noise", "stale", "decode").
func (m *Metrics) RecordChunkDropped(ctx context.Context, characterID, reason string) {
	m.ChunksDropped.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("character_id", characterID),
			attribute.String("reason", reason),
		),
	)
}

// RecordDecodeError records a chunk whose audio payload failed to decode.
func (m *Metrics) RecordDecodeError(ctx context.Context, characterID string) {
	m.DecodeErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("character_id", characterID)),
	)
}

// RecordInterrupt records a playback interruption for a character.
func (m *Metrics) RecordInterrupt(ctx context.Context, characterID string) {
	m.Interrupts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("character_id", characterID)),
	)
}

// RecordSendFailed records a failed send with the message kind that failed
// ("text", "audio", "trigger").
func (m *Metrics) RecordSendFailed(ctx context.Context, characterID, kind string) {
	m.SendsFailed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("character_id", characterID),
			attribute.String("kind", kind),
		),
	)
}
