package workers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workerInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ocrnlp_worker_inflight",
			Help: "Number of calls currently holding a worker slot",
		},
		[]string{"pool"}, // pool: recognition, rasterization
	)

	workerWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ocrnlp_worker_waiting",
			Help: "Number of calls waiting for a worker slot",
		},
		[]string{"pool"},
	)

	workerRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrnlp_worker_rejected_total",
			Help: "Calls rejected because the wait queue was full",
		},
		[]string{"pool"},
	)
)
