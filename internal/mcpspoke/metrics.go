package mcpspoke

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	spokeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bosun",
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Successful MCP tool calls",
		},
		[]string{"tool"},
	)

	spokeResultsCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bosun",
			Subsystem: "mcp",
			Name:      "search_results_count",
			Help:      "Items returned per search_knowledge call",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 15, 20, 40},
		},
	)
)
