// Package telemetry holds the Prometheus metrics and OpenTelemetry tracer
// shared by services and adapters.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Registry is the metrics registry served on /metrics.
var Registry = prometheus.NewRegistry()

// Prometheus metrics
var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpkb_vectorization_jobs_total",
			Help: "Total number of vectorization jobs by terminal status",
		},
		[]string{"status"},
	)
	jobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fpkb_vectorization_jobs_active",
			Help: "Number of vectorization jobs running in this process",
		},
	)
	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fpkb_vectorization_job_duration_seconds",
			Help:    "Duration of finished vectorization jobs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14), // 0.5s to ~68m
		},
	)
	chunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpkb_chunks_total",
			Help: "Total number of chunks processed by outcome",
		},
		[]string{"outcome"},
	)
	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpkb_provider_requests_total",
			Help: "Provider calls by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)
	providerRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpkb_provider_retries_total",
			Help: "Provider call retries after transient failures",
		},
		[]string{"provider", "operation"},
	)
	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fpkb_provider_request_duration_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)
	rerankFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fpkb_ranking_rerank_fallbacks_total",
			Help: "Rankings that fell back to retrieval scores",
		},
	)
	duplicatesRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fpkb_ranking_duplicates_removed_total",
			Help: "Matches removed as near-duplicates during ranking",
		},
	)
	maintenanceRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpkb_maintenance_runs_total",
			Help: "Maintenance task runs by task, trigger and outcome",
		},
		[]string{"task", "trigger", "outcome"},
	)
	maintenanceItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpkb_maintenance_items_total",
			Help: "Jobs recovered or pruned by maintenance tasks",
		},
		[]string{"task"},
	)
)

var tracer = otel.Tracer("farmer-power/knowledge")

func init() {
	Registry.MustRegister(
		jobsTotal, jobsActive, jobDuration, chunksTotal,
		providerRequests, providerRetries, providerLatency,
		rerankFallbacks, duplicatesRemoved,
		maintenanceRuns, maintenanceItems,
	)
}

// Handler serves the registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// JobStarted marks a job as running.
func JobStarted() {
	jobsActive.Inc()
}

// JobFinished records a job reaching a terminal status.
func JobFinished(status string, elapsed time.Duration) {
	jobsActive.Dec()
	jobsTotal.WithLabelValues(status).Inc()
	jobDuration.Observe(elapsed.Seconds())
}

// ChunksProcessed counts chunks by outcome ("stored" or "failed").
func ChunksProcessed(outcome string, n int) {
	if n > 0 {
		chunksTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// ProviderCall records one provider call.
func ProviderCall(provider, operation string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	providerRequests.WithLabelValues(provider, operation, outcome).Inc()
	providerLatency.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// ProviderRetry counts a retry of a provider call.
func ProviderRetry(provider, operation string) {
	providerRetries.WithLabelValues(provider, operation).Inc()
}

// RerankFallback counts a ranking that ignored the reranker.
func RerankFallback() {
	rerankFallbacks.Inc()
}

// DuplicatesRemoved counts matches dropped by deduplication.
func DuplicatesRemoved(n int) {
	if n > 0 {
		duplicatesRemoved.Add(float64(n))
	}
}

// MaintenanceRun records one maintenance task run.
func MaintenanceRun(task, trigger string, err error, items int) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	maintenanceRuns.WithLabelValues(task, trigger, outcome).Inc()
	if items > 0 {
		maintenanceItems.WithLabelValues(task).Add(float64(items))
	}
}

// StartSpan starts a span with the given attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
