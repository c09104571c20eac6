// Package metrics exposes Prometheus collectors for the joblink service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal              *prometheus.CounterVec
	fetchDurationSeconds      *prometheus.HistogramVec
	decisionsTotal            *prometheus.CounterVec
	decisionConfidence        prometheus.Histogram
	escalationsTotal          *prometheus.CounterVec
	queueItemsTotal           *prometheus.CounterVec
	queueDepth                *prometheus.GaugeVec
	drainPassesTotal          *prometheus.CounterVec
	throttleDelaySeconds      prometheus.Histogram
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joblink_fetches_total",
				Help: "Total fetch attempts, labeled by provider tier and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "joblink_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by provider tier.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"provider"},
		)

		decisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joblink_decisions_total",
				Help: "Total extraction decisions, labeled by leading signal.",
			},
			[]string{"signal"},
		)

		decisionConfidence = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "joblink_decision_confidence",
				Help:    "Histogram of decision confidence scores.",
				Buckets: []float64{0, 0.25, 0.5, 0.55, 0.6, 0.75, 0.9, 1},
			},
		)

		escalationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joblink_escalations_total",
				Help: "Total escalations, labeled by kind (llm, renderer) and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		queueItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joblink_queue_items_total",
				Help: "Total queue items processed, labeled by queue and status.",
			},
			[]string{"queue", "status"},
		)

		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "joblink_queue_depth",
				Help: "Current number of queued entries per queue.",
			},
			[]string{"queue"},
		)

		drainPassesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joblink_drain_passes_total",
				Help: "Total drain passes, labeled by queue.",
			},
			[]string{"queue"},
		)

		throttleDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "joblink_throttle_delay_seconds",
				Help:    "Histogram of inter-item throttle waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt for a provider tier.
func ObserveFetch(provider, outcome string, duration time.Duration) {
	fetchesTotal.WithLabelValues(provider, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveDecision records a finished extraction decision.
func ObserveDecision(leadingSignal string, confidence float64) {
	decisionsTotal.WithLabelValues(leadingSignal).Inc()
	decisionConfidence.Observe(confidence)
}

// ObserveEscalation records an LLM or renderer escalation attempt.
func ObserveEscalation(kind, outcome string) {
	escalationsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveQueueItem counts one processed queue item by terminal status.
func ObserveQueueItem(queue, status string) {
	queueItemsTotal.WithLabelValues(queue, status).Inc()
}

// SetQueueDepth publishes the current depth of a queue.
func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveDrainPass counts one drain pass over a queue.
func ObserveDrainPass(queue string) {
	drainPassesTotal.WithLabelValues(queue).Inc()
}

// ObserveThrottleDelay records the duration of an inter-item wait.
func ObserveThrottleDelay(duration time.Duration) {
	throttleDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecond.WithLabelValues(method, route).Observe(duration.Seconds())
}
