package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlward_pipeline_outcomes_total",
			Help: "Terminal pipeline outcomes by kind.",
		},
		[]string{"outcome"},
	)
	pipelineAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlward_pipeline_attempts",
			Help:    "Generate attempts consumed per pipeline run.",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
	)
	pipelineDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlward_pipeline_duration_seconds",
			Help:    "End-to-end pipeline latency per request.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlward_validation_rejections_total",
			Help: "Validator rejections by violation kind.",
		},
		[]string{"violation"},
	)
	extractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlward_extractions_total",
			Help: "Successful SQL extractions by strategy.",
		},
		[]string{"strategy"},
	)
	completionLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlward_completion_latency_seconds",
			Help:    "Completion client latency per generate call.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)
	executionLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlward_execution_latency_seconds",
			Help:    "Query engine latency per accepted statement.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	resultRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlward_result_rows",
			Help:    "Rows returned per successful pipeline run.",
			Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000},
		},
	)
	authRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlward_auth_rejections_total",
			Help: "Rejected requests on protected routes by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineOutcomesTotal,
		pipelineAttempts,
		pipelineDurationSeconds,
		validationRejectionsTotal,
		extractionsTotal,
		completionLatencySeconds,
		executionLatencySeconds,
		resultRows,
		authRejectionsTotal,
	)
}

func ObserveAuthRejection(reason string) {
	authRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObservePipelineOutcome(outcome string, attempts int, elapsed time.Duration) {
	pipelineOutcomesTotal.WithLabelValues(outcome).Inc()
	pipelineAttempts.Observe(float64(attempts))
	pipelineDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveValidationRejection(violation string) {
	validationRejectionsTotal.WithLabelValues(violation).Inc()
}

func ObserveExtraction(strategy string) {
	extractionsTotal.WithLabelValues(strategy).Inc()
}

func ObserveCompletionLatency(elapsed time.Duration) {
	completionLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveExecution(elapsed time.Duration, rowCount int) {
	executionLatencySeconds.Observe(elapsed.Seconds())
	resultRows.Observe(float64(rowCount))
}
