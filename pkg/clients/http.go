package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = circuitbreaker.ErrOpen

// ResponseError is a non-2xx response. The body has already been read and closed.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports server errors and rate limits.
func (e *ResponseError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// DefaultShouldRetry retries transport errors, 5xx and 429. Context
// cancellation is never retried.
func DefaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.Retryable()
	}
	return true
}

// HTTPConfig configures an HTTPExecutor.
type HTTPConfig struct {
	Client     *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// ShouldRetry decides whether an attempt's error is worth repeating.
	ShouldRetry func(error) bool
	// Breaker is optional; nil disables the circuit breaker.
	Breaker *BreakerConfig
}

// DefaultHTTPConfig returns three retries between 100ms and 5s.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		MaxRetries:  3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		ShouldRetry: DefaultShouldRetry,
	}
}

func (c HTTPConfig) normalize() HTTPConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = DefaultShouldRetry
	}
	if c.Client == nil {
		c.Client = NewHTTPClient(0)
	}
	return c
}

// HTTPExecutor sends requests through a retry policy and an optional circuit
// breaker. Successful responses are returned with an unread body; anything
// else surfaces as an error.
type HTTPExecutor struct {
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

//nolint:bodyclose // generic type parameter, not a live response
func NewHTTPExecutor(cfg HTTPConfig) *HTTPExecutor {
	cfg = cfg.normalize()
	shouldRetry := cfg.ShouldRetry
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *http.Response, err error) bool { return shouldRetry(err) }).
		ReturnLastFailure().
		Build()

	policies := []failsafe.Policy[*http.Response]{retry}
	if cfg.Breaker != nil {
		policies = append(policies, newBreaker[*http.Response](*cfg.Breaker, func(_ *http.Response, err error) bool {
			var respErr *ResponseError
			if errors.As(err, &respErr) {
				return respErr.StatusCode >= 500
			}
			return err != nil && !errors.Is(err, context.Canceled)
		}))
	}
	return &HTTPExecutor{client: cfg.Client, executor: failsafe.With(policies...)}
}

// Do issues method url with body, rebuilding the request on every attempt.
func (e *HTTPExecutor) Do(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	return e.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			return nil, &ResponseError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return resp, nil
	})
}
