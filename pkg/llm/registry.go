package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(cfg Config) (Provider, error)

type EmbedderFactory func(cfg Config) (Embedder, error)

var (
	registryMu sync.RWMutex
	providers  = map[string]ProviderFactory{}
	embedders  = map[string]EmbedderFactory{}
)

func init() {
	Register("openai", func(cfg Config) (Provider, error) { return NewOpenAIProvider(cfg), nil })
	Register("anthropic", func(cfg Config) (Provider, error) { return NewAnthropicProvider(cfg), nil })
	Register("ollama", func(cfg Config) (Provider, error) {
		return newOpenAICompatible(cfg, "ollama", "http://localhost:11434/v1"), nil
	})
	Register("mock", func(cfg Config) (Provider, error) { return NewMockProvider(), nil })

	RegisterEmbedder("openai", newOpenAIEmbedder)
	RegisterEmbedder("ollama", newOllamaEmbedder)
	RegisterEmbedder("anthropic", func(cfg Config) (Embedder, error) { return unsupportedEmbedder{provider: "anthropic"}, nil })
	RegisterEmbedder("mock", func(cfg Config) (Embedder, error) { return NewMockEmbedder(), nil })
}

// Register makes a chat backend available under name. Later registrations win.
func Register(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[strings.ToLower(name)] = factory
}

// RegisterEmbedder makes an embedding backend available under name.
func RegisterEmbedder(name string, factory EmbedderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	embedders[strings.ToLower(name)] = factory
}

func NewProvider(cfg Config) (Provider, error) {
	registryMu.RLock()
	factory, ok := providers[strings.ToLower(cfg.Provider)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	return factory(cfg)
}

func NewEmbedder(cfg Config) (Embedder, error) {
	registryMu.RLock()
	factory, ok := embedders[strings.ToLower(cfg.Provider)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return factory(cfg)
}

// Providers lists registered chat backends.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
