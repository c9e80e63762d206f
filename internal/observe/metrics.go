// Package observe provides application-wide observability primitives for
// Clinivox: OpenTelemetry metrics, tracing helpers, structured logging,
// and instrumentation for the stdio command loop.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the optional /metrics listener. A package-level default
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

// meterName is the instrumentation scope name used for all Clinivox metrics.
const meterName = "github.com/clinivox/clinivox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks per-stage pipeline latency. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("status", ...)
	StageDuration metric.Float64Histogram

	// JobDuration tracks end-to-end job latency by final status.
	JobDuration metric.Float64Histogram

	// JobsTotal counts processed jobs. Use with attribute:
	//   attribute.String("status", ...)
	JobsTotal metric.Int64Counter

	// ProviderRequests counts model/provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveJobs tracks the number of jobs currently in flight (0 or 1
	// under the single-consumer dispatch model, but counted anyway).
	ActiveJobs metric.Int64UpDownCounter

	// TurnsProduced counts reconstructed turns per job language.
	TurnsProduced metric.Int64Counter

	// TranslatorFallbacks counts drops from the bulk translation path to
	// the throttled per-turn path.
	TranslatorFallbacks metric.Int64Counter

	// Extractions counts produced clinical records. Use with attribute:
	//   attribute.String("method", ...)
	Extractions metric.Int64Counter

	// CacheLookups counts audio download cache lookups. Use with
	// attribute: attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// CommandDuration tracks stdio command handling time. Use with
	// attributes: attribute.String("cmd", ...), attribute.String("status", ...)
	CommandDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Batch
// audio jobs run from sub-second health checks to multi-minute ASR passes.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("clinivox.stage.duration",
		metric.WithDescription("Latency of a single pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JobDuration, err = m.Float64Histogram("clinivox.job.duration",
		metric.WithDescription("End-to-end job latency by final status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CommandDuration, err = m.Float64Histogram("clinivox.command.duration",
		metric.WithDescription("Handling time of stdio protocol commands."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.JobsTotal, err = m.Int64Counter("clinivox.jobs.total",
		metric.WithDescription("Total processed jobs by final status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("clinivox.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("clinivox.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.TurnsProduced, err = m.Int64Counter("clinivox.turns.produced",
		metric.WithDescription("Total reconstructed turns by transcript language."),
	); err != nil {
		return nil, err
	}
	if met.TranslatorFallbacks, err = m.Int64Counter("clinivox.translator.fallbacks",
		metric.WithDescription("Total drops from bulk translation to the per-turn path."),
	); err != nil {
		return nil, err
	}
	if met.Extractions, err = m.Int64Counter("clinivox.extractions",
		metric.WithDescription("Total clinical records produced by extraction method."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("clinivox.cache.lookups",
		metric.WithDescription("Total audio cache lookups by result."),
	); err != nil {
		return nil, err
	}

	if met.ActiveJobs, err = m.Int64UpDownCounter("clinivox.active_jobs",
		metric.WithDescription("Number of jobs currently in flight."),
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

// RecordStage records one pipeline-stage execution with its duration.
func (m *Metrics) RecordStage(ctx context.Context, stage, status string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
}

// RecordJob records a finished job with its duration and final status.
func (m *Metrics) RecordJob(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.JobsTotal.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, seconds, attrs)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurns records the number of turns a job produced.
func (m *Metrics) RecordTurns(ctx context.Context, language string, count int) {
	m.TurnsProduced.Add(ctx, int64(count),
		metric.WithAttributes(attribute.String("language", language)),
	)
}

// RecordTranslatorFallback records one drop from the bulk translation
// path to the per-turn path.
func (m *Metrics) RecordTranslatorFallback(ctx context.Context) {
	m.TranslatorFallbacks.Add(ctx, 1)
}

// RecordExtraction records one produced clinical record and the strategy
// that produced it ("llm" or "rules").
func (m *Metrics) RecordExtraction(ctx context.Context, method string) {
	m.Extractions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("method", method)),
	)
}

// Cache lookup results.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// RecordCacheLookup records one audio cache lookup with its result,
// [CacheHit] or [CacheMiss].
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}
