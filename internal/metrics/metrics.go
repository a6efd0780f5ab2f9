package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	analysesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_analyses_total",
		Help: "Total number of incident analyses completed",
	})
	analysisFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_analysis_failures_total",
		Help: "Total number of incident analyses that failed (model, parse or persistence)",
	})
	actionsCommittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_actions_committed_total",
		Help: "Total number of guarded actions that reached the committed state",
	})
	actionsRolledBackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_actions_rolled_back_total",
		Help: "Total number of guarded actions rolled back after apply or verify failure",
	})
	actionsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_actions_rejected_total",
		Help: "Total number of action proposals rejected before a backup was taken",
	})
	actionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warden_actions_in_flight",
		Help: "Number of action executions currently in a non-terminal state",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		analysesTotal,
		analysisFailuresTotal,
		actionsCommittedTotal,
		actionsRolledBackTotal,
		actionsRejectedTotal,
		actionsInFlight,
	)
}

// IncAnalysis increments the completed analyses counter.
func IncAnalysis() { analysesTotal.Inc() }

// IncAnalysisFailure increments the failed analyses counter.
func IncAnalysisFailure() { analysisFailuresTotal.Inc() }

// IncActionCommitted increments the committed actions counter.
func IncActionCommitted() { actionsCommittedTotal.Inc() }

// IncActionRolledBack increments the rolled-back actions counter.
func IncActionRolledBack() { actionsRolledBackTotal.Inc() }

// IncActionRejected increments the rejected actions counter.
func IncActionRejected() { actionsRejectedTotal.Inc() }

// ActionStarted marks an execution as in flight.
func ActionStarted() { actionsInFlight.Inc() }

// ActionFinished marks an execution as terminal.
func ActionFinished() { actionsInFlight.Dec() }
