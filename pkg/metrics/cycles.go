package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CycleRunMetrics records outcomes of cycle order generation runs.
type CycleRunMetrics struct {
	outcomes *prometheus.CounterVec
	runs     *prometheus.CounterVec
}

// NewCycleRunMetrics registers the cycle run metrics on the provided registerer.
func NewCycleRunMetrics(reg prometheus.Registerer) *CycleRunMetrics {
	if reg == nil {
		return &CycleRunMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cycle_subscription_outcomes",
		Help: "Per-subscription outcomes of cycle order generation.",
	}, []string{"outcome"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cycle_runs",
		Help: "Completed cycle order generation runs.",
	}, []string{"status"})
	reg.MustRegister(outcomes, runs)
	return &CycleRunMetrics{outcomes: outcomes, runs: runs}
}

// AddOutcome adds n to the counter for an outcome (generated, skipped, excluded, error).
func (c *CycleRunMetrics) AddOutcome(outcome string, n int) {
	if c == nil || c.outcomes == nil || n <= 0 {
		return
	}
	c.outcomes.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}

// IncRun increments the run counter with the given status (ok, failed).
func (c *CycleRunMetrics) IncRun(status string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(status)).Inc()
}
