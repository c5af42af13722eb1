package raster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rasterizationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocrnlp_rasterization_duration_seconds",
			Help:    "Time spent rendering PDF pages per document",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	rasterizationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocrnlp_rasterization_failures_total",
			Help: "PDF documents that could not be rasterized",
		},
	)
)
