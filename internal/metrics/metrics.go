// Package metrics holds the prometheus collectors of a settlement run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leviathan"

// Metrics is registered once per registry. Sessions share it; every series
// is partitioned by treatment.
type Metrics struct {
	RoundsSettled *prometheus.CounterVec
	SettleErrors  *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	Defaults      *prometheus.CounterVec
	CostClamps    *prometheus.CounterVec
	SettleLatency *prometheus.HistogramVec
	PhaseLatency  *prometheus.HistogramVec
	ActiveGroups  prometheus.Gauge
}

// New registers the collectors on reg. A nil reg creates a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		RoundsSettled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settle",
			Name:      "group_rounds_total",
			Help:      "Total group rounds sealed",
		}, []string{"treatment"}),

		SettleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settle",
			Name:      "errors_total",
			Help:      "Total settlements that failed after validation",
		}, []string{"treatment"}),

		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "barrier",
			Name:      "rejections_total",
			Help:      "Total submissions rejected at validation, by wire code",
		}, []string{"treatment", "phase", "code"}),

		Defaults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "barrier",
			Name:      "defaults_total",
			Help:      "Total decisions supplied by the timeout default",
		}, []string{"treatment", "phase"}),

		CostClamps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settle",
			Name:      "cost_clamps_total",
			Help:      "Total punishment costs clamped to the available balance",
		}, []string{"treatment"}),

		SettleLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settle",
			Name:      "round_duration_seconds",
			Help:      "Wall time to gather and settle one group round",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"treatment"}),

		PhaseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "barrier",
			Name:      "phase_duration_seconds",
			Help:      "Wall time from opening a phase barrier to its release",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"treatment", "phase"}),

		ActiveGroups: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active_groups",
			Help:      "Groups currently settling a round",
		}),
	}
}
