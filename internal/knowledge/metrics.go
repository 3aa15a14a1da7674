package knowledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bosun",
			Name:      "retrievals_total",
			Help:      "Knowledge retrievals by path",
		},
		[]string{"path"},
	)

	retrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bosun",
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of knowledge retrieval including expansion",
			Buckets:   prometheus.DefBuckets,
		},
	)

	retrievalResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bosun",
			Name:      "retrieval_results",
			Help:      "Items returned per retrieval after expansion",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 40, 60},
		},
	)
)
