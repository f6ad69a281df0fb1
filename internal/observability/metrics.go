// Package observability registers the Prometheus metrics shared by the
// ingestion pipeline and the generative gateway.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rowsIngestedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "ingest",
		Name:      "rows_ingested_total",
		Help:      "Number of CSV rows successfully upserted into the record store.",
	})

	rowsRejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "ingest",
		Name:      "rows_rejected_total",
		Help:      "Number of CSV rows rejected during ingestion, labeled by reason.",
	}, []string{"reason"})

	batchOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "ingest",
		Name:      "batches_total",
		Help:      "Number of CSV batches finished, labeled by terminal status.",
	}, []string{"status"})

	jobRetryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "jobs",
		Name:      "ingest_retries_total",
		Help:      "Number of ingestion job attempts retried after a transient failure.",
	})

	generativeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "insights_service",
		Subsystem: "generative",
		Name:      "request_duration_seconds",
		Help:      "Latency of calls to the generative backend, labeled by endpoint.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"endpoint"})

	fallbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights_service",
		Subsystem: "generative",
		Name:      "fallback_total",
		Help:      "Number of responses served by the deterministic engine instead of the backend.",
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(
		rowsIngestedCounter,
		rowsRejectedCounter,
		batchOutcomeCounter,
		jobRetryCounter,
		generativeDuration,
		fallbackCounter,
	)
}

// RecordRowIngested counts one upserted CSV row.
func RecordRowIngested() {
	rowsIngestedCounter.Inc()
}

// RecordRowRejected counts one rejected CSV row by reason.
func RecordRowRejected(reason string) {
	rowsRejectedCounter.WithLabelValues(reason).Inc()
}

// RecordBatchOutcome counts one finished batch by terminal status.
func RecordBatchOutcome(status string) {
	batchOutcomeCounter.WithLabelValues(status).Inc()
}

// RecordJobRetry counts one retried ingestion attempt.
func RecordJobRetry() {
	jobRetryCounter.Inc()
}

// ObserveGenerativeRequest records the latency of one backend call.
func ObserveGenerativeRequest(endpoint string, elapsed time.Duration) {
	generativeDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// RecordFallback counts one deterministic fallback response.
func RecordFallback(endpoint string) {
	fallbackCounter.WithLabelValues(endpoint).Inc()
}
