// Package metrics exposes passd's Prometheus instrumentation: vault
// operation counts, diagnose issue counts, and operation latency. Grounded
// on cuemby-warren/pkg/metrics, trimmed to the handful of series this
// daemon's operations actually produce.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SecretOperationsTotal counts Secret CRUD/move/copy/clone calls by
	// operation name and outcome ("ok" or "error").
	SecretOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passd_secret_operations_total",
		Help: "Total number of secret operations, labeled by operation and outcome.",
	}, []string{"operation", "outcome"})

	// DiagnoseIssuesTotal counts diagnostic issues surfaced by diagnose,
	// labeled by issue type.
	DiagnoseIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passd_diagnose_issues_total",
		Help: "Total number of diagnostic issues found, labeled by issue type.",
	}, []string{"issue"})

	// OperationDuration observes how long each RPC method takes to
	// complete, labeled by method name.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "passd_operation_duration_seconds",
		Help:    "Duration of RPC method calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
