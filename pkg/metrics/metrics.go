// Package metrics provides Prometheus metrics for conduit.
//
// # Overview
//
// Metrics are package-level promauto collectors registered with the
// default registry, covering the three moving parts of the SDK:
//   - Transport: fetch latency by scheme and status
//   - Extraction: records, chunks, handler latency and run outcome
//   - Batching: flushes by trigger and status, flush sizes, pending items
//   - Notifications: dispatched notifications by canonical event
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	err := handler(ctx, chunk)
//	metrics.HandlerDuration.WithLabelValues(metrics.Status(err)).Observe(timer.Seconds())
//
// Labels are kept low-cardinality: accumulator queue keys are never used
// as labels because they embed the tenant scope.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "conduit"

var (
	// FetchDuration tracks resource fetch latency up to response headers.
	// Labels: scheme (http/https/s3/gs), status (status code or "error")
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time to first byte of extraction resources",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"scheme", "status"},
	)

	// RecordsExtracted counts decoded records by format
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_records_total",
			Help:      "Total number of records decoded from extraction resources",
		},
		[]string{"format"},
	)

	// ChunksDispatched counts chunk handler invocations by outcome
	ChunksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_chunks_total",
			Help:      "Total number of chunk handler invocations",
		},
		[]string{"status"},
	)

	// HandlerDuration tracks chunk handler latency
	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_handler_duration_seconds",
			Help:      "Chunk handler latency",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"status"},
	)

	// HandlersInFlight tracks chunk handlers currently running
	HandlersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extract_handlers_in_flight",
			Help:      "Number of chunk handler invocations in flight",
		},
	)

	// Extractions counts finished extraction runs
	Extractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Total number of extraction runs by outcome",
		},
		[]string{"format", "status"},
	)

	// Flushes counts accumulator flushes.
	// Labels: registry (registry name), trigger (size/timer/drain), status
	Flushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batcher_flushes_total",
			Help:      "Total number of accumulator flushes",
		},
		[]string{"registry", "trigger", "status"},
	)

	// FlushSize observes the number of items handed to each flush callback
	FlushSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batcher_flush_size",
			Help:      "Items per accumulator flush",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"registry"},
	)

	// FlushDuration tracks flush callback latency
	FlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batcher_flush_duration_seconds",
			Help:      "Accumulator flush callback latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"registry"},
	)

	// PendingItems tracks items waiting in accumulator queues
	PendingItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batcher_pending_items",
			Help:      "Items buffered across accumulator queues",
		},
		[]string{"registry"},
	)

	// Notifications counts dispatched notifications by canonical event
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of dispatched notifications",
		},
		[]string{"event", "status"},
	)
)

// Status maps an error to the status label value
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Timer measures elapsed time from its creation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// Seconds returns the elapsed time in seconds
func (t *Timer) Seconds() float64 {
	return t.Stop().Seconds()
}
