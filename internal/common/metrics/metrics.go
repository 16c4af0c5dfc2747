// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_runs_started_total",
			Help: "Total number of report runs triggered",
		},
	)

	PipelineRunsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_finished_total",
			Help: "Total number of report runs by terminal state",
		},
		[]string{"state"},
	)

	PipelineRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_runs_active",
			Help: "Number of runs currently executing",
		},
	)

	TeamOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_team_outcomes_total",
			Help: "Total number of per-team terminal outcomes",
		},
		[]string{"state"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of pipeline stages in seconds",
		},
		[]string{"stage"},
	)

	InterpreterRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_interpreter_retries_total",
			Help: "Total number of interpretation retry attempts",
		},
	)

	InterpreterCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_interpreter_cache_hits_total",
			Help: "Total number of narrative cache hits",
		},
	)

	DeliveryResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_delivery_results_total",
			Help: "Total number of per-recipient delivery results by status",
		},
		[]string{"status"},
	)
)
