package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/ifthen/internal/ir"
)

// Metrics exposes dispatcher counters to Prometheus.
//
// A nil *Metrics is valid and records nothing, so the core never depends on a
// registry being configured.
type Metrics struct {
	ticks       prometheus.Counter
	evaluations *prometheus.CounterVec
	dispatches  prometheus.Counter
	pruned      prometheus.Counter
	monitors    prometheus.Gauge
}

// NewMetrics registers the engine's collectors with reg.
// Labels: result (TRUE, FALSE, NULL) on evaluations_total.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ifthen",
			Name:      "ticks_total",
			Help:      "Total driver ticks processed",
		}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ifthen",
			Name:      "evaluations_total",
			Help:      "Total monitor evaluations by result",
		}, []string{"result"}),
		dispatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ifthen",
			Name:      "dispatches_total",
			Help:      "Total behavior invocations",
		}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ifthen",
			Name:      "handlers_pruned_total",
			Help:      "Total dead handlers removed from monitors",
		}),
		monitors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ifthen",
			Name:      "monitors",
			Help:      "Number of active expression monitors",
		}),
	}
}

func (m *Metrics) tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) evaluated(result ir.Ternary) {
	if m != nil {
		m.evaluations.WithLabelValues(result.String()).Inc()
	}
}

func (m *Metrics) dispatched(n int) {
	if m != nil && n > 0 {
		m.dispatches.Add(float64(n))
	}
}

func (m *Metrics) prunedHandlers(n int) {
	if m != nil && n > 0 {
		m.pruned.Add(float64(n))
	}
}

func (m *Metrics) setMonitors(n int) {
	if m != nil {
		m.monitors.Set(float64(n))
	}
}
