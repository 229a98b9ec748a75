// Package metrics exposes Prometheus collectors for the facility API.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	tasksTotal                 *prometheus.CounterVec
	taskDispatchSeconds        *prometheus.HistogramVec
	authFailuresTotal          *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	queueRejectionsTotal       prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iri_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iri_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iri_tasks_total",
				Help: "Total number of task status changes, labeled by router, command and status.",
			},
			[]string{"router", "command", "status"},
		)

		taskDispatchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iri_task_dispatch_duration_seconds",
				Help:    "Histogram of task dispatch durations, labeled by router and command.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"router", "command"},
		)

		authFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iri_auth_failures_total",
				Help: "Total number of rejected credentials, labeled by sub-domain.",
			},
			[]string{"subdomain"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "iri_active_workers",
				Help: "Number of workers currently executing a task.",
			},
		)

		queueRejectionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "iri_task_queue_rejections_total",
				Help: "Total number of tasks that could not be enqueued.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveTask counts a task reaching status.
func ObserveTask(router, command, status string) {
	Init()
	tasksTotal.WithLabelValues(router, command, status).Inc()
}

// ObserveDispatch records how long one dispatch took.
func ObserveDispatch(router, command string, duration time.Duration) {
	Init()
	taskDispatchSeconds.WithLabelValues(router, command).Observe(duration.Seconds())
}

// ObserveAuthFailure counts a rejected credential.
func ObserveAuthFailure(subdomain string) {
	Init()
	authFailuresTotal.WithLabelValues(subdomain).Inc()
}

// ObserveQueueRejection counts a task the queue refused.
func ObserveQueueRejection() {
	Init()
	queueRejectionsTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
