package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckResult represents the result of an individual health check
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) CheckResult

// HealthChecker manages and executes health checks
type HealthChecker struct {
	service string
	version string
	timeout time.Duration
	checks  map[string]HealthCheck
}

func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		service: service,
		version: version,
		timeout: 5 * time.Second,
		checks:  make(map[string]HealthCheck),
	}
}

func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	hc.checks[name] = check
}

// CheckHealth runs all checks. Any unhealthy check makes the service
// unhealthy; a degraded check only degrades it.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Service:   hc.service,
		Version:   hc.version,
		Timestamp: time.Now().Unix(),
		Checks:    make(map[string]CheckResult, len(hc.checks)),
	}

	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	anyUnhealthy, anyDegraded := false, false
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
		result := hc.checks[name](checkCtx)
		cancel()
		status.Checks[name] = result
		switch result.Status {
		case StatusHealthy:
		case StatusDegraded:
			anyDegraded = true
		default:
			anyUnhealthy = true
		}
	}

	switch {
	case anyUnhealthy:
		status.Status = StatusUnhealthy
	case anyDegraded:
		status.Status = StatusDegraded
	default:
		status.Status = StatusHealthy
	}
	return status
}

// Handler serves the health report, 503 when unhealthy.
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.CheckHealth(c.Request.Context())
		statusCode := http.StatusOK
		if health.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, health)
	}
}

func timed(start time.Time, err error, name string) CheckResult {
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%s ping failed: %v", name, err),
			Latency: time.Since(start).String(),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: name + " reachable", Latency: time.Since(start).String()}
}

// DatabaseHealthCheck pings Postgres.
func DatabaseHealthCheck(db *sql.DB) HealthCheck {
	return func(ctx context.Context) CheckResult {
		if db == nil {
			return CheckResult{Status: StatusUnhealthy, Message: "database connection is nil"}
		}
		start := time.Now()
		return timed(start, db.PingContext(ctx), "database")
	}
}

// RedisHealthCheck pings Redis. Redis only backs rate limiting, so failure
// degrades rather than fails the service.
func RedisHealthCheck(client goredis.UniversalClient) HealthCheck {
	return func(ctx context.Context) CheckResult {
		if client == nil {
			return CheckResult{Status: StatusDegraded, Message: "redis not configured"}
		}
		start := time.Now()
		result := timed(start, client.Ping(ctx).Err(), "redis")
		if result.Status == StatusUnhealthy {
			result.Status = StatusDegraded
		}
		return result
	}
}

// Pinger is satisfied by the Kafka producer and consumer.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// KafkaHealthCheck checks broker connectivity through a Kafka client.
func KafkaHealthCheck(name string, client Pinger) HealthCheck {
	return func(ctx context.Context) CheckResult {
		if client == nil {
			return CheckResult{Status: StatusUnhealthy, Message: name + " client is nil"}
		}
		start := time.Now()
		return timed(start, client.HealthCheck(ctx), name)
	}
}

// ConfigurationHealthCheck reports missing required settings.
func ConfigurationHealthCheck(configs map[string]string) HealthCheck {
	return func(context.Context) CheckResult {
		var missing []string
		for key, value := range configs {
			if value == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("Missing required configuration: %v", missing)}
		}
		return CheckResult{Status: StatusHealthy, Message: "All required configuration present"}
	}
}
