package recognition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recognitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocrnlp_recognition_duration_seconds",
			Help:    "Time spent inside the recognition engine per image",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 25},
		},
	)

	recognitionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocrnlp_recognition_failures_total",
			Help: "Recognition engine calls that returned an error",
		},
	)

	malformedDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocrnlp_malformed_detections_total",
			Help: "Raw engine items dropped because they could not be normalized",
		},
	)
)
