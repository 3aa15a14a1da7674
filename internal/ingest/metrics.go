package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bosun",
		Name:      "items_created_total",
		Help:      "Knowledge items inserted by source",
	}, []string{"source"})

	itemsLinked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bosun",
		Name:      "items_linked_total",
		Help:      "Items processed by the linking pass by outcome",
	}, []string{"status"})
)
