package rule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rule rendering metrics
	ruleRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remedygen_rule_render_duration_seconds",
			Help:    "Duration of per-rule template rendering in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	ruleRenderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remedygen_rule_render_total",
			Help: "Total number of per-rule, per-format render attempts",
		},
		[]string{"format", "status"}, // status: success or error
	)
)
