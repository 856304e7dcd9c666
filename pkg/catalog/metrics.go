package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog transaction metrics
	catalogUpdateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remedygen_catalog_update_duration_seconds",
			Help:    "Duration of committed catalog transactions in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	catalogUpdateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remedygen_catalog_update_total",
			Help: "Total number of catalog update attempts by outcome",
		},
		[]string{"outcome"},
	)
)
