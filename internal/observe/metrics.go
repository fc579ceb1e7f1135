// Package observe provides application-wide observability primitives for
// Speak King: OpenTelemetry metrics and the provider bootstrap that exposes
// them through a Prometheus scrape endpoint.
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

// meterName is the instrumentation scope name used for all Speak King metrics.
const meterName = "github.com/42Seoul/Speak-King-Korean-LMS"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SessionsCompleted counts practice sessions that reached the finished
	// stage.
	SessionsCompleted metric.Int64Counter

	// ItemOutcomes counts per-item outcomes. Use with attribute:
	//   attribute.String("outcome", "spoken"|"skipped")
	ItemOutcomes metric.Int64Counter

	// Scores tracks the distribution of final per-item scores (0-100).
	Scores metric.Float64Histogram

	// ReportErrors counts failed progress-report deliveries.
	ReportErrors metric.Int64Counter

	// ActiveSessions tracks the number of live practice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// scoreBuckets defines histogram bucket boundaries for the 0-100 score scale.
// The fine band around the pass threshold shows how close near-misses land.
var scoreBuckets = []float64{
	0, 10, 20, 30, 40, 50, 60, 65, 70, 75, 80, 90, 100,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.SessionsCompleted, err = m.Int64Counter("speakking.sessions.completed",
		metric.WithDescription("Total practice sessions that reached the finished stage."),
	); err != nil {
		return nil, err
	}
	if met.ItemOutcomes, err = m.Int64Counter("speakking.items",
		metric.WithDescription("Total practice item outcomes by outcome kind."),
	); err != nil {
		return nil, err
	}
	if met.ReportErrors, err = m.Int64Counter("speakking.progress.report_errors",
		metric.WithDescription("Total failed progress-report deliveries."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.Scores, err = m.Float64Histogram("speakking.score",
		metric.WithDescription("Distribution of final per-item pronunciation scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("speakking.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("speakking.active_sessions",
		metric.WithDescription("Number of live practice sessions."),
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

// RecordItemOutcome records one practice item outcome ("spoken" or "skipped").
func (m *Metrics) RecordItemOutcome(ctx context.Context, outcome string) {
	m.ItemOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordScore records a final per-item score.
func (m *Metrics) RecordScore(ctx context.Context, score float64) {
	m.Scores.Record(ctx, score)
}

// RecordReportError records one failed progress-report delivery.
func (m *Metrics) RecordReportError(ctx context.Context) {
	m.ReportErrors.Add(ctx, 1)
}
