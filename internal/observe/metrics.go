// Package observe provides application-wide observability primitives for
// Panelvox: OpenTelemetry metrics with a Prometheus exporter bridge, and
// structured-logging setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a private [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all Panelvox metrics.
const meterName = "github.com/panelvox/panelvox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RosterPassDuration tracks the global identification pass latency.
	RosterPassDuration metric.Float64Histogram

	// PagePassDuration tracks per-page extraction latency.
	PagePassDuration metric.Float64Histogram

	// EnhanceDuration tracks the scene-wide enhancement batch latency.
	EnhanceDuration metric.Float64Histogram

	// SynthesisDuration tracks per-line speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// --- Counters ---

	// PagesProcessed counts pages by outcome. Use with attribute:
	//   attribute.String("status", "ok"|"failed")
	PagesProcessed metric.Int64Counter

	// ScenesProcessed counts completed scene runs by outcome.
	ScenesProcessed metric.Int64Counter

	// LinesRendered counts synthesized dialogue lines by outcome.
	LinesRendered metric.Int64Counter

	// VoicesAssigned counts new registry bindings by category.
	VoicesAssigned metric.Int64Counter

	// ProviderErrors counts collaborator errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// vision and synthesis round-trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RosterPassDuration, err = m.Float64Histogram("panelvox.roster_pass.duration",
		metric.WithDescription("Latency of the global character identification pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PagePassDuration, err = m.Float64Histogram("panelvox.page_pass.duration",
		metric.WithDescription("Latency of per-page dialogue extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EnhanceDuration, err = m.Float64Histogram("panelvox.enhance.duration",
		metric.WithDescription("Latency of the scene-wide dialogue enhancement batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("panelvox.synthesis.duration",
		metric.WithDescription("Latency of per-line speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PagesProcessed, err = m.Int64Counter("panelvox.pages.processed",
		metric.WithDescription("Total pages processed by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ScenesProcessed, err = m.Int64Counter("panelvox.scenes.processed",
		metric.WithDescription("Total scene runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.LinesRendered, err = m.Int64Counter("panelvox.lines.rendered",
		metric.WithDescription("Total synthesized dialogue lines by outcome."),
	); err != nil {
		return nil, err
	}
	if met.VoicesAssigned, err = m.Int64Counter("panelvox.voices.assigned",
		metric.WithDescription("Total new voice bindings by category."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("panelvox.provider.errors",
		metric.WithDescription("Total collaborator errors by provider and kind."),
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

// RecordPage records a processed-page counter increment with the standard
// status attribute.
func (m *Metrics) RecordPage(ctx context.Context, status string) {
	m.PagesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordLine records a rendered-line counter increment with the standard
// status attribute.
func (m *Metrics) RecordLine(ctx context.Context, status string) {
	m.LinesRendered.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordProviderError records a collaborator error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
