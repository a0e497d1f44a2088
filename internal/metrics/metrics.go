// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoping_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geoping_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LocationsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geoping_locations_ingested_total",
			Help: "Location records written to the store",
		},
	)

	SubmitRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geoping_location_submit_rejected_total",
			Help: "Location submissions rejected as invalid",
		},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoping_storage_errors_total",
			Help: "Storage failures by operation",
		},
		[]string{"op"},
	)
)

// RecordHTTPRequest records one completed request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
