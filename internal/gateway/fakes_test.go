package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"bosun/internal/store"
	"bosun/pkg/llm"
	"bosun/pkg/redis"
)

type fakeSettings struct {
	workspace   *store.Workspace
	own         *store.AISettings
	global      *store.AISettings
	globalCalls int
}

func (f *fakeSettings) GetWorkspace(_ context.Context, id string) (*store.Workspace, error) {
	if f.workspace == nil || f.workspace.ID != id {
		return nil, store.ErrNotFound
	}
	ws := *f.workspace
	return &ws, nil
}

func (f *fakeSettings) GetWorkspaceAISettings(context.Context, string) (*store.AISettings, error) {
	return f.own, nil
}

func (f *fakeSettings) GetGlobalAISettings(context.Context) (*store.AISettings, error) {
	f.globalCalls++
	return f.global, nil
}

type fakeUsage struct {
	mu        sync.Mutex
	entries   []store.UsageEntry
	monthly   int64
	insertErr error
}

func (f *fakeUsage) InsertUsage(_ context.Context, e store.UsageEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return f.insertErr
}

func (f *fakeUsage) MonthlyTokens(context.Context, string) (int64, error) {
	return f.monthly, nil
}

type fakeLimiter struct {
	allowed bool
	err     error
	calls   int
	limits  []int
}

func (f *fakeLimiter) Allow(_ context.Context, _ string, limit int) (redis.Decision, error) {
	f.calls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return redis.Decision{}, f.err
	}
	return redis.Decision{Allowed: f.allowed}, nil
}

// scriptedProvider fails with errs in order, then answers with reply.
type scriptedProvider struct {
	errs     []error
	reply    string
	usage    *llm.Usage
	calls    int
	messages [][]llm.Message
}

func (p *scriptedProvider) Complete(_ context.Context, msgs []llm.Message, _ []llm.Tool) (llm.Stream, error) {
	p.calls++
	p.messages = append(p.messages, msgs)
	if p.calls <= len(p.errs) {
		return nil, p.errs[p.calls-1]
	}
	chunks := []llm.Chunk{{Content: p.reply}}
	if p.usage != nil {
		chunks = append(chunks, llm.Chunk{Usage: p.usage})
	}
	return llm.NewStaticStream(chunks...), nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (e *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

var errBoom = errors.New("boom")

func activeWorkspace() *store.Workspace {
	return &store.Workspace{ID: "ws-1", Status: store.WorkspaceActive, Plan: store.PlanFree, AIActive: true, AllowGlobalAI: true}
}

func newTestFactory(settings *fakeSettings, usage *fakeUsage, limiter RateLimiter, provider llm.Provider, embedder llm.Embedder) *Factory {
	cfg := FactoryConfig{
		Settings: settings,
		Limiter:  limiter,
		Env:      EnvDefaults{AllowMock: true},
		Backoff:  Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond},
	}
	// Leave Usage as a nil interface when no fake is given.
	if usage != nil {
		cfg.Usage = usage
	}
	f := NewFactory(cfg)
	if provider != nil {
		f.newProvider = func(llm.Config) (llm.Provider, error) { return provider, nil }
	}
	if embedder != nil {
		f.newEmbedder = func(llm.Config) (llm.Embedder, error) { return embedder, nil }
	}
	return f
}
