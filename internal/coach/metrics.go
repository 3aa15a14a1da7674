package coach

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bosun",
	Name:      "coach_tool_calls_total",
	Help:      "Coach tool invocations by tool and outcome",
}, []string{"tool", "status"})
