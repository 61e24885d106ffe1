// Package observe provides the observability primitives shared by editscore:
// OpenTelemetry metrics, tracing helpers, and a trace-aware slog logger.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs a Prometheus exporter bridge so that a long-running batch can be
// scraped on /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all editscore metrics.
const meterName = "github.com/MrWong99/editscore"

// Lookup outcomes recorded on [Metrics.CodebookLookups].
const (
	OutcomeMatched   = "matched"
	OutcomePhonetic  = "phonetic"
	OutcomeUnmatched = "unmatched"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// AlignDuration tracks the time spent aligning one reference/hypothesis
	// pair. Use with attribute.String("mode", ...).
	AlignDuration metric.Float64Histogram

	// AlignTokens tracks the size of the DP table (reference tokens ×
	// hypothesis tokens) per alignment. Use with attribute.String("mode", ...).
	AlignTokens metric.Int64Histogram

	// Alignments counts scored pairs. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("status", ...)
	Alignments metric.Int64Counter

	// CodebookLookups counts per-word codebook lookups. Use with attribute:
	//   attribute.String("outcome", ...)
	CodebookLookups metric.Int64Counter

	// SentenceDuration tracks the time spent scoring one sentence against the
	// codebook.
	SentenceDuration metric.Float64Histogram

	// BatchRows counts processed batch rows. Use with attribute:
	//   attribute.String("status", ...)
	BatchRows metric.Int64Counter

	// ActiveWorkers tracks the number of batch workers currently scoring.
	ActiveWorkers metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// in-process scoring, which is far below network latencies.
var latencyBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1,
}

// cellBuckets are bucket boundaries for DP table sizes.
var cellBuckets = []float64{
	10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AlignDuration, err = m.Float64Histogram("editscore.align.duration",
		metric.WithDescription("Latency of aligning one reference/hypothesis pair."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlignTokens, err = m.Int64Histogram("editscore.align.cells",
		metric.WithDescription("Size of the edit distance table per alignment."),
		metric.WithExplicitBucketBoundaries(cellBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SentenceDuration, err = m.Float64Histogram("editscore.codebook.sentence.duration",
		metric.WithDescription("Latency of scoring one sentence against the codebook."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Alignments, err = m.Int64Counter("editscore.align.total",
		metric.WithDescription("Total scored pairs by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.CodebookLookups, err = m.Int64Counter("editscore.codebook.lookups",
		metric.WithDescription("Total codebook word lookups by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BatchRows, err = m.Int64Counter("editscore.batch.rows",
		metric.WithDescription("Total batch rows processed by status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveWorkers, err = m.Int64UpDownCounter("editscore.batch.active_workers",
		metric.WithDescription("Number of batch workers currently scoring a row."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAlignment records one scored pair: its latency, table size, and a
// counter increment tagged with mode and status.
func (m *Metrics) RecordAlignment(ctx context.Context, mode, status string, seconds float64, cells int) {
	modeAttr := metric.WithAttributes(attribute.String("mode", mode))
	m.AlignDuration.Record(ctx, seconds, modeAttr)
	m.AlignTokens.Record(ctx, int64(cells), modeAttr)
	m.Alignments.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordLookup records one codebook lookup with the given outcome.
func (m *Metrics) RecordLookup(ctx context.Context, outcome string) {
	m.CodebookLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordBatchRow records one processed batch row.
func (m *Metrics) RecordBatchRow(ctx context.Context, status string) {
	m.BatchRows.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
