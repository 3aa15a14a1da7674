package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig() HTTPConfig {
	cfg := DefaultHTTPConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	return cfg
}

func TestHTTPExecutor_RetriesServerErrorsAndResendsBody(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"text":"hi"}` {
			t.Errorf("attempt saw body %q", body)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing header")
		}
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := NewHTTPExecutor(fastConfig())
	resp, err := exec.Do(context.Background(), http.MethodPost, server.URL, []byte(`{"text":"hi"}`), http.Header{"Authorization": {"Bearer tok"}})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	resp.Body.Close()
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestHTTPExecutor_DoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("token revoked"))
	}))
	defer server.Close()

	_, err := NewHTTPExecutor(fastConfig()).Do(context.Background(), http.MethodGet, server.URL, nil, nil)
	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusForbidden || respErr.Body != "token revoked" {
		t.Fatalf("expected 403 ResponseError, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected single attempt, got %d", got)
	}
}

func TestHTTPExecutor_NegativeRetriesBounded(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.MaxRetries = -3
	if _, err := NewHTTPExecutor(cfg).Do(context.Background(), http.MethodGet, server.URL, nil, nil); err == nil {
		t.Fatal("expected failure")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected one attempt, got %d", got)
	}
}

func TestHTTPExecutor_BreakerOpensAfterFailures(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 0
	cfg.Breaker = &BreakerConfig{Name: "test-open", FailureThreshold: 2, Window: 2, Delay: time.Minute}
	exec := NewHTTPExecutor(cfg)

	for i := 0; i < 2; i++ {
		_, _ = exec.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
	}
	_, err := exec.Do(context.Background(), http.MethodGet, server.URL, nil, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected open breaker to short-circuit, server saw %d calls", got)
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{&ResponseError{StatusCode: 429}, true},
		{&ResponseError{StatusCode: 400}, false},
		{errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		if got := DefaultShouldRetry(tc.err); got != tc.want {
			t.Errorf("DefaultShouldRetry(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
