// Package metrics exports Core Registry and Task Scheduler gauges via
// prometheus, so the OTA Manager's Health Checker can scrape them during a
// self-update's post-swap verification (SPEC_FULL.md domain stack: per-core
// metrics and scheduler queue-depth gauges), grounded on the
// kadirpekel-hector observability package's private-registry +
// prometheus.NewGaugeVec/MustRegister/promhttp.HandlerFor pattern.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goose-run/goose-core/internal/coreops"
	"github.com/goose-run/goose-core/internal/scheduler"
)

// Registry owns a private prometheus registry (not the global
// DefaultRegisterer) so repeated construction in tests never collides on
// duplicate metric registration.
type Registry struct {
	reg *prometheus.Registry

	coreExecutions  *prometheus.GaugeVec
	coreSuccessRate *prometheus.GaugeVec
	coreAvgCost     *prometheus.GaugeVec
	queueDepth      prometheus.Gauge
}

// New constructs a Registry with every gauge registered. Execution counts
// are modeled as gauges rather than counters: RefreshCores snapshots the
// Core Registry's already-cumulative totals on each poll, it does not
// stream individual increments.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		coreExecutions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goose_core_executions_total",
			Help: "Total task executions per core, labeled by outcome.",
		}, []string{"core", "outcome"}),
		coreSuccessRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goose_core_success_rate",
			Help: "Running success rate per core (0-1).",
		}, []string{"core"}),
		coreAvgCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goose_core_avg_cost_dollars",
			Help: "Running average cost per execution, per core.",
		}, []string{"core"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goose_scheduler_queue_depth",
			Help: "Number of tasks currently queued in the autonomous task scheduler.",
		}),
	}
	r.reg.MustRegister(r.coreExecutions, r.coreSuccessRate, r.coreAvgCost, r.queueDepth)
	return r
}

// RefreshCores snapshots every registered core's running metrics into the
// gauges. Safe to call repeatedly from a polling loop.
func (r *Registry) RefreshCores(snapshots []coreops.CoreWithMetrics) {
	for _, s := range snapshots {
		core := string(s.Variant)
		r.coreExecutions.WithLabelValues(core, "success").Set(float64(s.Metrics.Successful))
		r.coreExecutions.WithLabelValues(core, "failure").Set(float64(s.Metrics.Failed))
		r.coreSuccessRate.WithLabelValues(core).Set(s.Metrics.SuccessRate)
		r.coreAvgCost.WithLabelValues(core).Set(s.Metrics.AvgCostDollars)
	}
}

// RefreshQueueDepth sets the scheduler queue-depth gauge from a live
// Scheduler.
func (r *Registry) RefreshQueueDepth(s *scheduler.Scheduler) {
	r.queueDepth.Set(float64(s.QueueDepth()))
}

// Handler returns an http.Handler serving this registry's metrics in the
// Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
