package gateway

import (
	"context"
	"fmt"
	"time"

	"bosun/internal/store"
	"bosun/pkg/cache"
	"bosun/pkg/crypto"
	"bosun/pkg/llm"
	"bosun/pkg/logging"
	"bosun/pkg/redis"
)

// SettingsStore reads the rows settings are resolved from.
type SettingsStore interface {
	GetWorkspace(ctx context.Context, workspaceID string) (*store.Workspace, error)
	GetWorkspaceAISettings(ctx context.Context, workspaceID string) (*store.AISettings, error)
	GetGlobalAISettings(ctx context.Context) (*store.AISettings, error)
}

// UsageStore records and sums token usage.
type UsageStore interface {
	InsertUsage(ctx context.Context, e store.UsageEntry) error
	MonthlyTokens(ctx context.Context, workspaceID string) (int64, error)
}

// RateLimiter is satisfied by *redis.SlidingWindow.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) (redis.Decision, error)
}

// Backoff bounds the delay between retry attempts.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

var DefaultBackoff = Backoff{Base: time.Second, Max: 10 * time.Second}

// Delay is the wait after the n-th failed attempt: Base doubled n-1 times,
// capped at Max.
func (b Backoff) Delay(n int) time.Duration {
	d := b.Base
	for i := 1; i < n && d < b.Max; i++ {
		d *= 2
	}
	return min(d, b.Max)
}

type FactoryConfig struct {
	Settings  SettingsStore
	Usage     UsageStore
	Limiter   RateLimiter
	Decrypter crypto.Decrypter
	Env       EnvDefaults
	Backoff   Backoff
	Logger    logging.Logger

	// GlobalTTL defaults to 30s.
	GlobalTTL time.Duration
}

// Factory resolves effective settings and builds gateway clients.
type Factory struct {
	settings  SettingsStore
	usage     UsageStore
	limiter   RateLimiter
	decrypter crypto.Decrypter
	env       EnvDefaults
	backoff   Backoff
	logger    logging.Logger
	resolvers []resolver
	global    *cache.Cache[*store.AISettings]

	newProvider func(llm.Config) (llm.Provider, error)
	newEmbedder func(llm.Config) (llm.Embedder, error)
	// retryScheduled sees each delay before it is waited out.
	retryScheduled func(time.Duration)
}

const globalCacheKey = "global"

func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Decrypter == nil {
		cfg.Decrypter = crypto.Plaintext{}
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Backoff.Max < cfg.Backoff.Base {
		cfg.Backoff.Max = cfg.Backoff.Base
	}
	return &Factory{
		settings:    cfg.Settings,
		usage:       cfg.Usage,
		limiter:     cfg.Limiter,
		decrypter:   cfg.Decrypter,
		env:         cfg.Env,
		backoff:     cfg.Backoff,
		logger:      logging.OrDiscard(cfg.Logger),
		resolvers:   defaultResolvers(),
		global:      cache.New[*store.AISettings](cache.Options{TTL: cfg.GlobalTTL, MaxEntries: 1}, cache.Hooks{}),
		newProvider: llm.NewProvider,
		newEmbedder: llm.NewEmbedder,
	}
}

func (f *Factory) globalSettings(ctx context.Context) (*store.AISettings, error) {
	return f.global.Get(ctx, globalCacheKey, func(ctx context.Context) (*store.AISettings, error) {
		return f.settings.GetGlobalAISettings(ctx)
	})
}

// InvalidateGlobal drops the cached admin settings row.
func (f *Factory) InvalidateGlobal() {
	f.global.Delete(globalCacheKey)
}

// Resolve runs the resolver chain for workspaceID. The first resolver that
// matches wins; a resolver error stops the chain.
func (f *Factory) Resolve(ctx context.Context, workspaceID string) (*EffectiveSettings, error) {
	ws, err := f.settings.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	own, err := f.settings.GetWorkspaceAISettings(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load workspace ai settings: %w", err)
	}
	global, err := f.globalSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load global ai settings: %w", err)
	}
	if own == nil {
		own = &store.AISettings{}
	}
	if global == nil {
		global = &store.AISettings{}
	}

	in := &resolveInput{workspace: ws, own: own, global: global, env: f.env, decrypter: f.decrypter}
	for _, r := range f.resolvers {
		s, matched, err := r.resolve(ctx, in)
		if err != nil {
			return nil, err
		}
		if matched {
			return s, nil
		}
	}
	return nil, fmt.Errorf("workspace %s: %w", workspaceID, ErrNoProvider)
}

// ForWorkspace resolves settings and builds a client for role. Embedder
// construction errors are deferred to the first Embed call so chat-only
// configurations still work.
func (f *Factory) ForWorkspace(ctx context.Context, workspaceID string, role Role) (*Client, error) {
	settings, err := f.Resolve(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	provider, err := f.newProvider(settings.chatConfig(role))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, err)
	}
	embedder, embedErr := f.newEmbedder(settings.embeddingConfig())

	return &Client{
		workspaceID: workspaceID,
		role:        role,
		settings:    *settings,
		provider:    provider,
		embedder:    embedder,
		embedErr:    embedErr,
		usage:       f.usage,
		limiter:     f.limiter,
		backoff:     f.backoff,
		logger:      f.logger,
		now:         time.Now,

		retryScheduled: f.retryScheduled,
	}, nil
}

// LLM is the call surface of a workspace client.
type LLM interface {
	Chat(ctx context.Context, params ChatParams, uc UsageContext) (*ChatResult, error)
	Embed(ctx context.Context, text string, uc UsageContext) (*EmbedResult, error)
	Settings() EffectiveSettings
}

// ClientSource builds workspace clients; *Factory is the production source.
type ClientSource interface {
	Client(ctx context.Context, workspaceID string, role Role) (LLM, error)
}

// Client implements ClientSource.
func (f *Factory) Client(ctx context.Context, workspaceID string, role Role) (LLM, error) {
	c, err := f.ForWorkspace(ctx, workspaceID, role)
	if err != nil {
		return nil, err
	}
	return c, nil
}
