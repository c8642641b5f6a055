// Package observe provides application-wide observability primitives for
// Tahrir: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Tahrir metrics.
const meterName = "github.com/sawtlabs/tahrir"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// DecodeDuration tracks per-chunk speech-to-text decode latency.
	DecodeDuration metric.Float64Histogram

	// CorrectionDuration tracks per-chunk LLM correction latency.
	CorrectionDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksProcessed counts chunks by terminal state. Use with attribute:
	//   attribute.String("state", ...) — "assembled" or "dropped"
	ChunksProcessed metric.Int64Counter

	// TierRoutings counts confidence tier assignments. Use with attribute:
	//   attribute.String("tier", ...) — "AUTO", "SUGGEST", or "REVIEW"
	TierRoutings metric.Int64Counter

	// CorrectionFallbacks counts corrections that fell back to the raw
	// transcript after a provider failure or drift rejection.
	CorrectionFallbacks metric.Int64Counter

	// --- Gauges ---

	// ActiveRuns tracks the number of transcription runs in flight.
	ActiveRuns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Decode of
// a 20-second chunk and an LLM correction round trip both land in the
// 0.25–10 s range on typical hardware.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DecodeDuration, err = m.Float64Histogram("tahrir.decode.duration",
		metric.WithDescription("Latency of per-chunk speech-to-text decoding."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CorrectionDuration, err = m.Float64Histogram("tahrir.correction.duration",
		metric.WithDescription("Latency of per-chunk LLM correction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksProcessed, err = m.Int64Counter("tahrir.chunks.processed",
		metric.WithDescription("Total chunks by terminal state (assembled, dropped)."),
	); err != nil {
		return nil, err
	}
	if met.TierRoutings, err = m.Int64Counter("tahrir.tier.routings",
		metric.WithDescription("Total confidence tier assignments by tier."),
	); err != nil {
		return nil, err
	}
	if met.CorrectionFallbacks, err = m.Int64Counter("tahrir.correction.fallbacks",
		metric.WithDescription("Total corrections that fell back to the raw transcript."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRuns, err = m.Int64UpDownCounter("tahrir.active_runs",
		metric.WithDescription("Number of transcription runs in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tahrir.http.request.duration",
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

// RecordChunkProcessed is a convenience method that records a chunk reaching
// a terminal state ("assembled" or "dropped").
func (m *Metrics) RecordChunkProcessed(ctx context.Context, state string) {
	m.ChunksProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}

// RecordTierRouting is a convenience method that records a confidence tier
// assignment.
func (m *Metrics) RecordTierRouting(ctx context.Context, tier string) {
	m.TierRoutings.Add(ctx, 1,
		metric.WithAttributes(attribute.String("tier", tier)),
	)
}

// RecordCorrectionFallback is a convenience method that records a correction
// falling back to the raw transcript.
func (m *Metrics) RecordCorrectionFallback(ctx context.Context, reason string) {
	m.CorrectionFallbacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
