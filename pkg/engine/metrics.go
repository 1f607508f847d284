package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes.
const (
	outcomeComplete   = "complete"
	outcomeFailed     = "failed"
	outcomeDropped    = "dropped"
	outcomeSuperseded = "superseded"
)

var (
	// RunsTotal counts aggregation runs by operation and outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetstat_runs_total",
		Help: "Aggregation runs by operation and outcome",
	}, []string{"operation", "outcome"})

	// RunDuration tracks the wall time of finished runs.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetstat_run_duration_seconds",
		Help:    "Duration of aggregation runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"operation"})

	// ChildFetchFailures counts failed per-address device listings.
	ChildFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetstat_child_fetch_failures_total",
		Help: "Failed device listings by category",
	}, []string{"category"})

	// ActiveRuns is the number of runs in progress.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetstat_active_runs",
		Help: "Number of aggregation runs in progress",
	})
)
