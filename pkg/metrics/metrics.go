package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionEvaluations counts authorisation decisions by model (policy|resource|hybrid)
	// and result (allow|deny|error).
	PermissionEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policyhub_permission_evaluations_total",
			Help: "Total number of permission evaluations",
		},
		[]string{"model", "result"},
	)

	// EvaluationLatency measures how long a single evaluation takes, store reads included.
	EvaluationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policyhub_permission_evaluation_seconds",
			Help:    "Permission evaluation latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"model"},
	)

	// AssignmentsSwept counts assignments deactivated by the expiry sweep.
	AssignmentsSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policyhub_assignments_swept_total",
			Help: "Total number of expired assignments deactivated",
		},
		[]string{"model"},
	)

	// PermissionChecks counts route guard outcomes by action and result
	// (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policyhub_permission_checks_total",
			Help: "Total number of route permission checks",
		},
		[]string{"action", "result"},
	)

	// APILatency measures HTTP request latencies. The model label names the
	// permission model that decided a guarded route, or "none".
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policyhub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status", "model"},
	)
)
