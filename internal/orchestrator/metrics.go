package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	interactionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bosun_interactions_processed_total",
		Help: "Interactions processed by final status",
	}, []string{"status"})

	escalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bosun_escalations_total",
		Help: "Interactions escalated to a human, by reason",
	}, []string{"reason"})

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bosun_dispatch_total",
		Help: "Asynchronous reply dispatch outcomes",
	}, []string{"status"})
)
