// Package observe provides application-wide observability primitives for
// webintel: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all webintel metrics.
const meterName = "github.com/webintel/webintel"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CrawlFetchDuration tracks per-page fetch+parse latency in the Explorer.
	CrawlFetchDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency (summarize, extract, reflect).
	LLMDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding-provider call latency.
	EmbeddingDuration metric.Float64Histogram

	// RAGAnswerDuration tracks end-to-end RAG Answerer latency per question.
	RAGAnswerDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// TaskDuration tracks Task Queue job execution latency by task kind.
	TaskDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// PagesCrawled counts pages fetched by the Explorer. Use with attribute:
	//   attribute.String("domain", ...)
	PagesCrawled metric.Int64Counter

	// EntitiesDiscovered counts new entities recorded by the Entity Merger.
	EntitiesDiscovered metric.Int64Counter

	// TasksProcessed counts Task Queue jobs completed. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	TasksProcessed metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveExplorations tracks the number of currently running Explorer
	// crawls.
	ActiveExplorations metric.Int64UpDownCounter

	// QueuedTasks tracks the number of Task Queue jobs awaiting a worker.
	QueuedTasks metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// sub-second provider calls up to multi-minute crawl/LLM operations.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CrawlFetchDuration, err = m.Float64Histogram("webintel.crawl.fetch.duration",
		metric.WithDescription("Latency of a single Explorer page fetch+parse."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("webintel.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("webintel.embedding.duration",
		metric.WithDescription("Latency of embedding provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RAGAnswerDuration, err = m.Float64Histogram("webintel.rag.answer.duration",
		metric.WithDescription("End-to-end RAG Answerer latency per question."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("webintel.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TaskDuration, err = m.Float64Histogram("webintel.task.duration",
		metric.WithDescription("Latency of Task Queue job execution by kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("webintel.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("webintel.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.PagesCrawled, err = m.Int64Counter("webintel.pages_crawled",
		metric.WithDescription("Total pages fetched by the Explorer, by domain."),
	); err != nil {
		return nil, err
	}
	if met.EntitiesDiscovered, err = m.Int64Counter("webintel.entities_discovered",
		metric.WithDescription("Total new entities recorded by the Entity Merger."),
	); err != nil {
		return nil, err
	}
	if met.TasksProcessed, err = m.Int64Counter("webintel.tasks_processed",
		metric.WithDescription("Total Task Queue jobs completed, by kind and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("webintel.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveExplorations, err = m.Int64UpDownCounter("webintel.active_explorations",
		metric.WithDescription("Number of currently running Explorer crawls."),
	); err != nil {
		return nil, err
	}
	if met.QueuedTasks, err = m.Int64UpDownCounter("webintel.queued_tasks",
		metric.WithDescription("Number of Task Queue jobs awaiting a worker."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("webintel.http.request.duration",
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

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordPageCrawled is a convenience method that records a page-crawled
// counter increment for the given domain.
func (m *Metrics) RecordPageCrawled(ctx context.Context, domain string) {
	m.PagesCrawled.Add(ctx, 1,
		metric.WithAttributes(attribute.String("domain", domain)),
	)
}

// RecordTaskProcessed is a convenience method that records a completed
// Task Queue job.
func (m *Metrics) RecordTaskProcessed(ctx context.Context, kind, status string) {
	m.TasksProcessed.Add(ctx, 1,
		metric.WithAttributes(
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
