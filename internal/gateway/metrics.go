package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bosun_llm_calls_total",
		Help: "LLM calls by role, provider and outcome",
	}, []string{"role", "provider", "status"})

	llmDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bosun_llm_duration_seconds",
		Help:    "LLM call latency including retries",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"role", "operation"})

	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bosun_llm_tokens_total",
		Help: "Tokens consumed by direction",
	}, []string{"direction"})

	llmRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bosun_llm_retries_total",
		Help: "LLM attempts that were retried",
	})

	llmRetryDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bosun_llm_retry_delay_seconds",
		Help:    "Backoff scheduled before an LLM retry",
		Buckets: []float64{.5, 1, 2, 4, 8, 10},
	})

	// RateLimitRejections counts limiter rejections, direction "inbound" or "outbound".
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bosun_rate_limit_rejections_total",
		Help: "Requests rejected by the per-workspace rate limiter",
	}, []string{"direction"})
)
