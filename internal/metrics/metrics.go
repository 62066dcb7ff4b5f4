// Package metrics exposes Prometheus collectors for the discovery service.
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
	tasksTotal                 *prometheus.CounterVec
	articlesScannedTotal       prometheus.Counter
	articlesAcceptedTotal      prometheus.Counter
	providerCallsTotal         *prometheus.CounterVec
	rateGateDelaySeconds       *prometheus.HistogramVec
	bulkItemsTotal             *prometheus.CounterVec
	imagesTotal                *prometheus.CounterVec
	activeTasks                prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_tasks_total",
				Help: "Total number of tasks that reached a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		articlesScannedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "discovery_articles_scanned_total",
				Help: "Total number of unique articles examined by the scan loop.",
			},
		)

		articlesAcceptedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "discovery_articles_accepted_total",
				Help: "Total number of articles persisted after both gates.",
			},
		)

		providerCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_provider_calls_total",
				Help: "Provider calls labeled by backend, operation and outcome.",
			},
			[]string{"provider", "operation", "outcome"},
		)

		rateGateDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discovery_rate_gate_delay_seconds",
				Help:    "Histogram of rate gate delays, labeled by kind.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"kind"},
		)

		bulkItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_bulk_items_total",
				Help: "Export and prefetch items, labeled by pipeline and outcome.",
			},
			[]string{"pipeline", "outcome"},
		)

		imagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_images_total",
				Help: "Images handled by the asset pipeline, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "discovery_active_tasks",
				Help: "Number of task jobs currently running.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
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

// ObserveTask counts a terminal task transition.
func ObserveTask(status string) {
	Init()
	tasksTotal.WithLabelValues(status).Inc()
}

// ObserveScanned counts one examined article.
func ObserveScanned() {
	Init()
	articlesScannedTotal.Inc()
}

// ObserveAccepted counts one persisted article.
func ObserveAccepted() {
	Init()
	articlesAcceptedTotal.Inc()
}

// ObserveProviderCall counts a provider call. Outcome is "ok" or "error".
func ObserveProviderCall(provider, operation string, err error) {
	Init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	providerCallsTotal.WithLabelValues(provider, operation, outcome).Inc()
}

// ObserveRateGateDelay records the duration of a rate gate wait.
func ObserveRateGateDelay(kind string, duration time.Duration) {
	Init()
	rateGateDelaySeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveBulkItem counts one export or prefetch item.
func ObserveBulkItem(pipeline, outcome string) {
	Init()
	bulkItemsTotal.WithLabelValues(pipeline, outcome).Inc()
}

// ObserveImage counts one image handled by the asset pipeline.
func ObserveImage(outcome string) {
	Init()
	imagesTotal.WithLabelValues(outcome).Inc()
}

// IncActiveTasks increments the running task gauge.
func IncActiveTasks() {
	Init()
	activeTasks.Inc()
}

// DecActiveTasks decrements the running task gauge.
func DecActiveTasks() {
	Init()
	activeTasks.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
