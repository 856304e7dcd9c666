package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generation facade metrics
	generateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remedygen_generate_duration_seconds",
			Help:    "End-to-end duration of artifact generation in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	generateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remedygen_generate_total",
			Help: "Total number of generation requests by format and outcome",
		},
		[]string{"format", "outcome"},
	)
)
