package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"bosun/internal/store"
	"bosun/pkg/llm"
	"bosun/pkg/logging"
)

type ChatParams struct {
	Messages []llm.Message
	Tools    []llm.Tool
	// WantConfidence asks the model for a <confidence> tag and parses it.
	WantConfidence bool
}

// UsageContext annotates the usage entry written for a call.
type UsageContext struct {
	InteractionID string
	Source        string
}

type ChatResult struct {
	Content    string
	ToolCalls  []llm.ToolCall
	Confidence float64
	TokensIn   int
	TokensOut  int
	Provider   string
	Model      string
}

type EmbedResult struct {
	Vector []float32
	Tokens int
}

// Client is a per-workspace, per-role gateway handle. It is cheap to build
// and safe for concurrent use.
type Client struct {
	workspaceID string
	role        Role
	settings    EffectiveSettings
	provider    llm.Provider
	embedder    llm.Embedder
	embedErr    error
	usage       UsageStore
	limiter     RateLimiter
	backoff     Backoff
	logger      logging.Logger
	now         func() time.Time

	retryScheduled func(time.Duration)
}

func (c *Client) Settings() EffectiveSettings { return c.settings }

func (c *Client) Chat(ctx context.Context, params ChatParams, uc UsageContext) (*ChatResult, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}
	msgs := params.Messages
	if params.WantConfidence {
		msgs = withConfidenceInstruction(msgs)
	}

	backend := c.settings.ForRole(c.role)
	start := c.now()
	attempts := 0
	completion, err := run(ctx, c, func(ctx context.Context) (llm.Completion, error) {
		attempts++
		stream, err := c.provider.Complete(ctx, msgs, params.Tools)
		if err != nil {
			return llm.Completion{}, err
		}
		return llm.Collect(ctx, stream)
	})
	latency := c.now().Sub(start)

	entry := store.UsageEntry{
		WorkspaceID: c.workspaceID,
		Role:        string(c.role),
		Operation:   "chat",
		Provider:    backend.Provider,
		Model:       backend.Model,
		LatencyMs:   latency.Milliseconds(),
		Attempts:    attempts,
		Success:     err == nil,
	}
	llmDuration.WithLabelValues(string(c.role), "chat").Observe(latency.Seconds())
	if err != nil {
		entry.Error = err.Error()
		c.recordUsage(ctx, entry, uc)
		llmCalls.WithLabelValues(string(c.role), backend.Provider, "error").Inc()
		return nil, fmt.Errorf("chat via %s: %w", backend.Provider, err)
	}

	tokensIn, tokensOut := completion.Usage.InputTokens, completion.Usage.OutputTokens
	if !completion.UsageReported {
		for _, m := range msgs {
			tokensIn += llm.EstimateTokens(m.Content)
		}
		tokensOut = llm.EstimateTokens(completion.Content)
	}
	entry.TokensIn, entry.TokensOut = tokensIn, tokensOut
	c.recordUsage(ctx, entry, uc)
	llmCalls.WithLabelValues(string(c.role), backend.Provider, "success").Inc()
	llmTokens.WithLabelValues("in").Add(float64(tokensIn))
	llmTokens.WithLabelValues("out").Add(float64(tokensOut))

	result := &ChatResult{
		Content:    completion.Content,
		ToolCalls:  completion.ToolCalls,
		Confidence: 1,
		TokensIn:   tokensIn,
		TokensOut:  tokensOut,
		Provider:   backend.Provider,
		Model:      backend.Model,
	}
	if params.WantConfidence {
		result.Content, result.Confidence = ParseConfidence(completion.Content)
	}
	return result, nil
}

func (c *Client) Embed(ctx context.Context, text string, uc UsageContext) (*EmbedResult, error) {
	if c.embedErr != nil {
		return nil, fmt.Errorf("%w: embedding backend: %v", ErrNoProvider, c.embedErr)
	}
	if err := c.admit(ctx); err != nil {
		return nil, err
	}

	backend := c.settings.Embedding
	start := c.now()
	attempts := 0
	vectors, err := run(ctx, c, func(ctx context.Context) ([][]float32, error) {
		attempts++
		return c.embedder.Embed(ctx, []string{text})
	})
	if err == nil && (len(vectors) == 0 || len(vectors[0]) == 0) {
		err = fmt.Errorf("%s returned no embedding", backend.Provider)
	}
	latency := c.now().Sub(start)
	tokens := llm.EstimateTokens(text)

	entry := store.UsageEntry{
		WorkspaceID: c.workspaceID,
		Role:        string(c.role),
		Operation:   "embed",
		Provider:    backend.Provider,
		Model:       backend.Model,
		LatencyMs:   latency.Milliseconds(),
		Attempts:    attempts,
		Success:     err == nil,
	}
	llmDuration.WithLabelValues(string(c.role), "embed").Observe(latency.Seconds())
	if err != nil {
		entry.Error = err.Error()
		c.recordUsage(ctx, entry, uc)
		llmCalls.WithLabelValues(string(c.role), backend.Provider, "error").Inc()
		return nil, fmt.Errorf("embed via %s: %w", backend.Provider, err)
	}
	entry.TokensIn = tokens
	c.recordUsage(ctx, entry, uc)
	llmCalls.WithLabelValues(string(c.role), backend.Provider, "success").Inc()
	llmTokens.WithLabelValues("in").Add(float64(tokens))

	return &EmbedResult{Vector: vectors[0], Tokens: tokens}, nil
}

// admit applies the inbound rate limit and the monthly budget. Limiter
// errors are returned as-is.
func (c *Client) admit(ctx context.Context) error {
	if c.limiter != nil {
		d, err := c.limiter.Allow(ctx, c.workspaceID, c.settings.RateLimitPerMinute)
		if err != nil {
			return fmt.Errorf("%w: rate limiter: %w", ErrQuotaUnavailable, err)
		}
		if !d.Allowed {
			RateLimitRejections.WithLabelValues("inbound").Inc()
			return fmt.Errorf("workspace %s: %d requests in window: %w", c.workspaceID, d.Count, ErrRateLimited)
		}
	}
	if c.settings.UsageLimit > 0 && c.usage != nil {
		used, err := c.usage.MonthlyTokens(ctx, c.workspaceID)
		if err != nil {
			return fmt.Errorf("%w: monthly usage: %w", ErrQuotaUnavailable, err)
		}
		if used >= c.settings.UsageLimit {
			return fmt.Errorf("workspace %s used %d of %d tokens: %w", c.workspaceID, used, c.settings.UsageLimit, ErrBudgetExceeded)
		}
	}
	return nil
}

func (c *Client) recordUsage(ctx context.Context, e store.UsageEntry, uc UsageContext) {
	if c.usage == nil {
		return
	}
	// Record even when the call's context was cancelled.
	if err := c.usage.InsertUsage(context.WithoutCancel(ctx), e); err != nil {
		c.logger.WithError(err).WithFields(logging.Fields{
			"workspace_id":   c.workspaceID,
			"interaction_id": uc.InteractionID,
			"source":         uc.Source,
			"operation":      e.Operation,
		}).Warn("Failed to record llm usage")
	}
}

// abortRetry reports errors another attempt cannot fix.
func abortRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, llm.ErrUnsupportedOperation) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return !statusErr.Retryable()
	}
	return false
}

func run[R any](ctx context.Context, c *Client, fn func(context.Context) (R, error)) (R, error) {
	policy := retrypolicy.NewBuilder[R]().
		WithMaxAttempts(max(1, c.settings.RetryAttempts)).
		WithDelayFunc(func(exec failsafe.ExecutionAttempt[R]) time.Duration {
			return c.backoff.Delay(exec.Attempts())
		}).
		AbortIf(func(_ R, err error) bool { return abortRetry(err) }).
		ReturnLastFailure().
		OnRetryScheduled(func(e failsafe.ExecutionScheduledEvent[R]) {
			llmRetryDelay.Observe(e.Delay.Seconds())
			if c.retryScheduled != nil {
				c.retryScheduled(e.Delay)
			}
		}).
		OnRetry(func(e failsafe.ExecutionEvent[R]) {
			llmRetries.Inc()
			c.logger.WithError(e.LastError()).WithFields(logging.Fields{
				"workspace_id": c.workspaceID,
				"role":         string(c.role),
				"attempt":      e.Attempts(),
			}).Debug("Retrying llm call")
		}).
		Build()

	return failsafe.With[R](policy).WithContext(ctx).Get(func() (R, error) {
		return fn(ctx)
	})
}
