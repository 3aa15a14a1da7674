package llm

import (
	"os"
	"testing"
)

func clearLLMEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "LLM_MODEL", "LLM_API_KEY", "LLM_API_URL", "LLM_MAX_TOKENS",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY", "EMBEDDING_API_URL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfig(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_MODEL", "claude-test")
	t.Setenv("LLM_MAX_TOKENS", "512")

	cfg := LoadConfig()
	if cfg.Provider != "anthropic" || cfg.Model != "claude-test" || cfg.MaxTokens != 512 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadEmbeddingConfig_LLMFallback(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("LLM_API_KEY", "sk-llm")
	t.Setenv("LLM_API_URL", "http://localhost:11434")

	cfg := LoadEmbeddingConfig()
	if cfg.Provider != "ollama" {
		t.Errorf("Provider = %q, want %q", cfg.Provider, "ollama")
	}
	if cfg.APIKey != "sk-llm" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "sk-llm")
	}
	if cfg.APIURL != "http://localhost:11434" {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, "http://localhost:11434")
	}
}

func TestLoadEmbeddingConfig_Override(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_API_KEY", "sk-ant")
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-small")
	t.Setenv("EMBEDDING_API_KEY", "sk-oai")

	cfg := LoadEmbeddingConfig()
	if cfg.Provider != "openai" || cfg.Model != "text-embedding-3-small" || cfg.APIKey != "sk-oai" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
