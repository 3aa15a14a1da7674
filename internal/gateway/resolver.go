package gateway

import (
	"context"
	"fmt"
	"strings"

	"bosun/internal/store"
	"bosun/pkg/crypto"
	"bosun/pkg/llm"
)

// EnvDefaults are the process-level fallbacks read from LLM_* and EMBEDDING_*.
type EnvDefaults struct {
	Chat      llm.Config
	Embedding llm.Config
	// AllowMock enables the final mock resolver.
	AllowMock bool
}

type resolveInput struct {
	workspace *store.Workspace
	own       *store.AISettings
	global    *store.AISettings
	env       EnvDefaults
	decrypter crypto.Decrypter
}

// resolver returns matched=false to pass to the next resolver in the chain.
type resolver struct {
	name    string
	resolve func(ctx context.Context, in *resolveInput) (*EffectiveSettings, bool, error)
}

func defaultResolvers() []resolver {
	return []resolver{
		{"policy", resolvePolicy},
		{"byok", resolveBYOK},
		{"global_policy", resolveGlobalPolicy},
		{"global", resolveGlobalKeys},
		{"env", resolveEnv},
		{"mock", resolveMock},
	}
}

func resolvePolicy(_ context.Context, in *resolveInput) (*EffectiveSettings, bool, error) {
	if in.workspace.AIBlocked {
		return nil, false, fmt.Errorf("workspace %s: %w", in.workspace.ID, ErrAccessDenied)
	}
	if in.workspace.Status == store.WorkspaceSuspended {
		return nil, false, fmt.Errorf("workspace %s: %w", in.workspace.ID, ErrWorkspaceSuspended)
	}
	return nil, false, nil
}

type keyring struct {
	openai    string
	anthropic string
}

func (k keyring) empty() bool { return k.openai == "" && k.anthropic == "" }

func (k keyring) forProvider(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return k.openai
	case "anthropic":
		return k.anthropic
	default:
		return ""
	}
}

// preferred picks the provider a key-only configuration should use.
func (k keyring) preferred() string {
	if k.openai != "" {
		return "openai"
	}
	return "anthropic"
}

func decryptKeys(d crypto.Decrypter, st *store.AISettings) (keyring, error) {
	var k keyring
	var err error
	if k.openai, err = d.Decrypt(st.OpenAIKey); err != nil {
		return keyring{}, fmt.Errorf("%w: decrypt openai key: %v", ErrNoProvider, err)
	}
	if k.anthropic, err = d.Decrypt(st.AnthropicKey); err != nil {
		return keyring{}, fmt.Errorf("%w: decrypt anthropic key: %v", ErrNoProvider, err)
	}
	k.openai = strings.TrimSpace(k.openai)
	k.anthropic = strings.TrimSpace(k.anthropic)
	return k, nil
}

func backendFor(keys keyring, provider, model string) Backend {
	if provider == "" {
		provider = keys.preferred()
	}
	return Backend{
		Provider: provider,
		Model:    firstNonEmpty(model, defaultChatModel(provider)),
		APIKey:   keys.forProvider(provider),
	}
}

func embeddingBackendFor(keys keyring, provider, model, chatProvider string) Backend {
	if provider == "" {
		if keys.openai != "" {
			provider = "openai"
		} else {
			provider = chatProvider
		}
	}
	return Backend{
		Provider: provider,
		Model:    firstNonEmpty(model, defaultEmbeddingModel(provider)),
		APIKey:   keys.forProvider(provider),
	}
}

// keyedSettings merges primary over fallback for providers, models and knobs.
func keyedSettings(source Source, keys keyring, primary, fallback *store.AISettings) *EffectiveSettings {
	customer := backendFor(keys, firstNonEmpty(primary.CustomerProvider, fallback.CustomerProvider),
		firstNonEmpty(primary.CustomerModel, fallback.CustomerModel))
	coach := backendFor(keys, firstNonEmpty(primary.CoachProvider, fallback.CoachProvider, customer.Provider),
		firstNonEmpty(primary.CoachModel, fallback.CoachModel))
	embedding := embeddingBackendFor(keys, firstNonEmpty(primary.EmbeddingProvider, fallback.EmbeddingProvider),
		firstNonEmpty(primary.EmbeddingModel, fallback.EmbeddingModel), customer.Provider)

	s := &EffectiveSettings{
		Source:    source,
		Customer:  customer,
		Coach:     coach,
		Embedding: embedding,
	}
	applyKnobs(s, primary, fallback)
	return s
}

func applyKnobs(s *EffectiveSettings, layers ...*store.AISettings) {
	s.MaxTokens = DefaultMaxTokens
	s.RateLimitPerMinute = DefaultRateLimitPerMinute
	s.RetryAttempts = DefaultRetryAttempts
	// Apply lowest priority first so earlier layers win.
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		if l == nil {
			continue
		}
		if l.Temperature != nil {
			s.Temperature = l.Temperature
		}
		if l.TopP != nil {
			s.TopP = l.TopP
		}
		if l.MaxTokens != nil && *l.MaxTokens > 0 {
			s.MaxTokens = *l.MaxTokens
		}
		if l.RateLimitPerMinute != nil && *l.RateLimitPerMinute > 0 {
			s.RateLimitPerMinute = *l.RateLimitPerMinute
		}
		if l.RetryAttempts != nil {
			s.RetryAttempts = *l.RetryAttempts
		}
		if l.PromptTemplate != "" {
			s.PromptTemplate = l.PromptTemplate
		}
	}
	if s.RetryAttempts < 1 {
		s.RetryAttempts = 1
	}
}

func resolveBYOK(_ context.Context, in *resolveInput) (*EffectiveSettings, bool, error) {
	keys, err := decryptKeys(in.decrypter, in.own)
	if err != nil {
		return nil, false, err
	}
	if keys.empty() {
		return nil, false, nil
	}
	// Tenant keys are billed to the tenant, so no usage limit.
	return keyedSettings(SourceBYOK, keys, in.own, in.global), true, nil
}

func resolveGlobalPolicy(_ context.Context, in *resolveInput) (*EffectiveSettings, bool, error) {
	if !in.workspace.AllowGlobalAI {
		return nil, false, fmt.Errorf("workspace %s has no keys and global ai is disabled: %w", in.workspace.ID, ErrAccessDenied)
	}
	return nil, false, nil
}

func planLimit(ws *store.Workspace) int64 {
	if ws.UsageLimitOverride != nil {
		return *ws.UsageLimitOverride
	}
	if ws.Plan == store.PlanPaid {
		return PaidPlanMonthlyTokens
	}
	return FreePlanMonthlyTokens
}

func resolveGlobalKeys(_ context.Context, in *resolveInput) (*EffectiveSettings, bool, error) {
	keys, err := decryptKeys(in.decrypter, in.global)
	if err != nil {
		return nil, false, err
	}
	if keys.empty() {
		return nil, false, nil
	}
	s := keyedSettings(SourceGlobal, keys, in.own, in.global)
	s.UsageLimit = planLimit(in.workspace)
	return s, true, nil
}

func resolveEnv(_ context.Context, in *resolveInput) (*EffectiveSettings, bool, error) {
	chat := in.env.Chat
	provider := strings.ToLower(chat.Provider)
	if chat.APIKey == "" && provider != "ollama" {
		return nil, false, nil
	}
	if provider == "" {
		provider = "openai"
	}
	backend := Backend{
		Provider: provider,
		Model:    firstNonEmpty(chat.Model, defaultChatModel(provider)),
		APIKey:   chat.APIKey,
		APIURL:   chat.APIURL,
	}
	embProvider := firstNonEmpty(strings.ToLower(in.env.Embedding.Provider), provider)
	s := &EffectiveSettings{
		Source:   SourceEnv,
		Customer: backend,
		Coach:    backend,
		Embedding: Backend{
			Provider: embProvider,
			Model:    firstNonEmpty(in.env.Embedding.Model, defaultEmbeddingModel(embProvider)),
			APIKey:   firstNonEmpty(in.env.Embedding.APIKey, chat.APIKey),
			APIURL:   firstNonEmpty(in.env.Embedding.APIURL, chat.APIURL),
		},
	}
	applyKnobs(s, in.own, in.global)
	if chat.MaxTokens > 0 {
		s.MaxTokens = chat.MaxTokens
	}
	return s, true, nil
}

func resolveMock(_ context.Context, in *resolveInput) (*EffectiveSettings, bool, error) {
	if !in.env.AllowMock {
		return nil, false, nil
	}
	mock := Backend{Provider: "mock", Model: "mock"}
	s := &EffectiveSettings{Source: SourceMock, Customer: mock, Coach: mock, Embedding: mock}
	applyKnobs(s, in.own, in.global)
	return s, true, nil
}
