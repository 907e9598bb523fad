// Package metrics exposes Prometheus metrics for reconcile runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
	"github.com/vibe-io/cdk-extensions-sub001/internal/resource"
)

var (
	// runsTotal counts finished runs.
	// Labels: kind, action, outcome
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resourcectl",
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Total reconcile runs by outcome",
	}, []string{"kind", "action", "outcome"})

	// pollsTotal counts status reads by the decision they led to.
	// Labels: kind, decision
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resourcectl",
		Subsystem: "reconcile",
		Name:      "polls_total",
		Help:      "Total status polls by decision",
	}, []string{"kind", "decision"})

	// writesTotal counts status writes.
	// Labels: kind, action
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resourcectl",
		Subsystem: "reconcile",
		Name:      "writes_total",
		Help:      "Total status writes",
	}, []string{"kind", "action"})

	// runDuration measures wall time of a run.
	// Labels: kind, action
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "resourcectl",
		Subsystem: "reconcile",
		Name:      "run_duration_seconds",
		Help:      "Reconcile run duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"kind", "action"})

	// triggerRequests counts trigger API responses.
	// Labels: status (accepted, duplicate, not_found, bad_request, queue_full)
	triggerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resourcectl",
		Subsystem: "trigger",
		Name:      "requests_total",
		Help:      "Total trigger API requests by result",
	}, []string{"status"})
)

// Observer feeds one run's steps and outcome into the metrics.
type Observer struct {
	kind    string
	action  string
	started time.Time
}

// NewObserver starts timing a run of action against a target of kind.
func NewObserver(kind resource.Kind, action resource.Action) *Observer {
	return &Observer{kind: string(kind), action: string(action), started: time.Now()}
}

// OnStep implements reconcile.Observer.
func (o *Observer) OnStep(step reconcile.Step, _ resource.Snapshot) {
	pollsTotal.WithLabelValues(o.kind, step.Decision).Inc()
	if step.Decision == "write" {
		writesTotal.WithLabelValues(o.kind, o.action).Inc()
	}
}

// OnOutcome implements reconcile.Observer.
func (o *Observer) OnOutcome(out reconcile.Outcome[resource.Snapshot]) {
	runsTotal.WithLabelValues(o.kind, o.action, out.Kind.String()).Inc()
	runDuration.WithLabelValues(o.kind, o.action).Observe(time.Since(o.started).Seconds())
}

// TriggerRequest counts one trigger API response.
func TriggerRequest(status string) {
	triggerRequests.WithLabelValues(status).Inc()
}
