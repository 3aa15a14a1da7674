package gateway

import (
	"strings"

	"bosun/pkg/llm"
)

// Role selects which provider/model pair a client talks to.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleCoach    Role = "coach"
)

// Source records which resolver produced the settings.
type Source string

const (
	SourceBYOK   Source = "byok"
	SourceGlobal Source = "global"
	SourceEnv    Source = "env"
	SourceMock   Source = "mock"
)

const (
	DefaultRateLimitPerMinute = 60
	DefaultRetryAttempts      = 3
	DefaultMaxTokens          = 1024

	FreePlanMonthlyTokens int64 = 10_000
	PaidPlanMonthlyTokens int64 = 1_000_000
)

// Backend is one provider endpoint.
type Backend struct {
	Provider string
	Model    string
	APIKey   string
	APIURL   string
}

// EffectiveSettings is the resolved configuration for one workspace. It is
// never stored.
type EffectiveSettings struct {
	Source    Source
	Customer  Backend
	Coach     Backend
	Embedding Backend

	Temperature        *float64
	MaxTokens          int
	TopP               *float64
	RateLimitPerMinute int
	RetryAttempts      int
	// UsageLimit is tokens per calendar month; 0 means unlimited.
	UsageLimit     int64
	PromptTemplate string
}

// ForRole returns the chat backend for role.
func (s EffectiveSettings) ForRole(role Role) Backend {
	if role == RoleCoach {
		return s.Coach
	}
	return s.Customer
}

func (s EffectiveSettings) chatConfig(role Role) llm.Config {
	b := s.ForRole(role)
	return llm.Config{
		Provider:    b.Provider,
		Model:       b.Model,
		APIKey:      b.APIKey,
		APIURL:      b.APIURL,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		TopP:        s.TopP,
	}
}

func (s EffectiveSettings) embeddingConfig() llm.Config {
	return llm.Config{
		Provider: s.Embedding.Provider,
		Model:    s.Embedding.Model,
		APIKey:   s.Embedding.APIKey,
		APIURL:   s.Embedding.APIURL,
	}
}

func defaultChatModel(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic":
		return "claude-3-5-haiku-latest"
	case "ollama":
		return "llama3.1"
	case "mock":
		return "mock"
	default:
		return "gpt-4o-mini"
	}
}

func defaultEmbeddingModel(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "text-embedding-3-small"
	case "ollama":
		return "nomic-embed-text"
	case "mock":
		return "mock"
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
