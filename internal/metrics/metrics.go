// Package metrics provides Prometheus metrics for the pipeline and HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recbridge"

var (
	// RunsTotal counts finished runs by terminal status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of finished pipeline runs",
		},
		[]string{"status"},
	)

	// RunsInFlight tracks runs currently being processed by this process.
	RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Pipeline runs currently processing",
		},
	)

	// MatchOutcomesTotal counts processed matches by outcome.
	MatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_outcomes_total",
			Help:      "Total number of processed matches by outcome",
		},
		[]string{"outcome"},
	)

	// RunDuration measures wall time from start to terminal state.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	// HTTPRequestsTotal counts API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// JanitorRemovedTotal counts scratch files deleted by the janitor.
	JanitorRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "janitor_removed_files_total",
			Help:      "Total number of expired downloads removed",
		},
	)
)

// RunStarted marks a run as processing.
func RunStarted() {
	RunsInFlight.Inc()
}

// RunFinished records a run reaching status after d.
func RunFinished(status string, d time.Duration) {
	RunsInFlight.Dec()
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(d.Seconds())
}

// RecordOutcome records one processed match.
func RecordOutcome(outcome string) {
	MatchOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordRequest records one HTTP request.
func RecordRequest(method, route, status string) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
