package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisewatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "noisewatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Evaluation metrics
	MeasurementsEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisewatch_measurements_evaluated_total",
			Help: "Total number of measurements run through the evaluator",
		},
		[]string{"outcome"}, // outcome: quiet, counting, escalated, stand_down, error
	)

	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisewatch_escalations_total",
			Help: "Total number of alert escalations dispatched",
		},
		[]string{"tier"},
	)

	StandDownsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "noisewatch_stand_downs_total",
			Help: "Total number of alerts reset after sustained low readings",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "noisewatch_evaluation_duration_seconds",
			Help:    "Time taken for a full evaluate-dispatch-persist chain",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisewatch_dispatch_total",
			Help: "Total number of outbound notification attempts",
		},
		[]string{"status"}, // status: success, failed, unconfigured
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "noisewatch_dispatch_duration_seconds",
			Help:    "Time taken to deliver a notification",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	DispatchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "noisewatch_dispatch_retries_total",
			Help: "Total number of notification delivery retries",
		},
	)

	// State store metrics
	StateOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "noisewatch_state_op_duration_seconds",
			Help:    "Latency of alert-state store operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"}, // op: get, update
	)

	StateConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "noisewatch_state_conflicts_total",
			Help: "Total number of optimistic transaction conflicts retried",
		},
	)

	// Intake metrics
	IntakeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisewatch_intake_events_total",
			Help: "Total number of change events received",
		},
		[]string{"source", "status"}, // source: http, kafka; status: handled, deleted, rejected, failed
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noisewatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
