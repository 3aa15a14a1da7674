package clients

import (
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"

	"bosun/pkg/logging"
)

var (
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bosun",
			Name:      "circuit_breaker_state",
			Help:      "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
	breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bosun",
			Name:      "circuit_breaker_state_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

func init() {
	prometheus.MustRegister(breakerState, breakerTransitions)
}

// BreakerConfig configures a circuit breaker in front of an outbound API.
type BreakerConfig struct {
	Name string
	// FailureThreshold failures within Window executions trip the breaker.
	FailureThreshold uint
	Window           uint
	// Delay is how long the breaker stays open before probing.
	Delay  time.Duration
	Logger logging.Logger
}

func (c BreakerConfig) normalize() BreakerConfig {
	if c.Name == "" {
		c.Name = "http"
	}
	if c.Window == 0 {
		c.Window = 10
	}
	if c.FailureThreshold == 0 || c.FailureThreshold > c.Window {
		c.FailureThreshold = c.Window / 2
		if c.FailureThreshold == 0 {
			c.FailureThreshold = 1
		}
	}
	if c.Delay <= 0 {
		c.Delay = 15 * time.Second
	}
	return c
}

func stateValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return 0
	}
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "closed"
	}
}

func newBreaker[R any](cfg BreakerConfig, isFailure func(R, error) bool) circuitbreaker.CircuitBreaker[R] {
	cfg = cfg.normalize()
	breakerState.WithLabelValues(cfg.Name).Set(0)
	return circuitbreaker.NewBuilder[R]().
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.Window).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(1).
		HandleIf(isFailure).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			breakerState.WithLabelValues(cfg.Name).Set(stateValue(event.NewState))
			breakerTransitions.WithLabelValues(cfg.Name, stateName(event.OldState), stateName(event.NewState)).Inc()
			if cfg.Logger != nil {
				cfg.Logger.WithFields(logging.Fields{
					"circuit_breaker": cfg.Name,
					"from_state":      stateName(event.OldState),
					"to_state":        stateName(event.NewState),
				}).Warn("circuit breaker state change")
			}
		}).
		Build()
}
