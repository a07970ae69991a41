// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorhub_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutorhub_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	AuthOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorhub_auth_operations_total",
			Help: "Auth flow outcomes by operation",
		},
		[]string{"operation", "outcome"},
	)

	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorhub_emails_total",
			Help: "Transactional emails by template and outcome",
		},
		[]string{"template", "outcome"},
	)

	RateLimitRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorhub_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	EventPublishErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tutorhub_event_publish_errors_total",
			Help: "Domain events that failed to publish",
		},
	)

	MaintenanceRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorhub_maintenance_runs_total",
			Help: "Scheduled maintenance job runs",
		},
		[]string{"job", "outcome"},
	)
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func Handler() http.Handler {
	return promhttp.Handler()
}
