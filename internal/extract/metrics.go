package extract

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	extractRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrnlp_extract_requests_total",
			Help: "Extractions by document type and outcome",
		},
		[]string{"type", "outcome"},
	)

	extractDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocrnlp_extract_duration_seconds",
			Help:    "End-to-end extraction time by document type",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type"},
	)

	pagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocrnlp_pages_processed_total",
			Help: "Pages run through recognition",
		},
	)

	blocksPerRequest = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocrnlp_blocks_per_request",
			Help:    "Number of blocks returned per successful extraction",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)
