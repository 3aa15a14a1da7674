package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bosun/pkg/clients"
)

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type httpEmbedder struct {
	client   *http.Client
	apiKey   string
	apiURL   string
	model    string
	provider string
}

func newHTTPEmbedder(cfg Config, provider, defaultURL string) (*httpEmbedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultURL
	}
	return &httpEmbedder{
		client:   clients.NewHTTPClient(cfg.timeout(60 * time.Second)),
		apiKey:   cfg.APIKey,
		apiURL:   apiURL,
		model:    cfg.Model,
		provider: provider,
	}, nil
}

type openAIEmbedder struct{ *httpEmbedder }

func newOpenAIEmbedder(cfg Config) (Embedder, error) {
	base, err := newHTTPEmbedder(cfg, "openai", "https://api.openai.com/v1")
	if err != nil {
		return nil, err
	}
	return openAIEmbedder{base}, nil
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e openAIEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, errors.New("inputs are required")
	}
	payload, err := json.Marshal(openAIEmbeddingRequest{Model: e.model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("openai embed: marshal request: %w", err)
	}
	body, err := e.post(ctx, e.apiURL+"/embeddings", payload)
	if err != nil {
		return nil, err
	}
	var response openAIEmbeddingResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("openai embed: decode response: %w", err)
	}
	if len(response.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embed: expected %d embeddings, got %d", len(inputs), len(response.Data))
	}
	vectors := make([][]float32, len(inputs))
	for i, entry := range response.Data {
		idx := entry.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vectors[idx] = entry.Embedding
	}
	return vectors, nil
}

type ollamaEmbedder struct{ *httpEmbedder }

func newOllamaEmbedder(cfg Config) (Embedder, error) {
	base, err := newHTTPEmbedder(cfg, "ollama", "http://localhost:11434")
	if err != nil {
		return nil, err
	}
	return ollamaEmbedder{base}, nil
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed issues one request per input; the legacy endpoint has no batching.
func (e ollamaEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, errors.New("inputs are required")
	}
	vectors := make([][]float32, 0, len(inputs))
	for _, input := range inputs {
		payload, err := json.Marshal(ollamaEmbeddingRequest{Model: e.model, Prompt: input})
		if err != nil {
			return nil, fmt.Errorf("ollama embed: marshal request: %w", err)
		}
		body, err := e.post(ctx, strings.TrimSuffix(e.apiURL, "/v1")+"/api/embeddings", payload)
		if err != nil {
			return nil, err
		}
		var response ollamaEmbeddingResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("ollama embed: decode response: %w", err)
		}
		if len(response.Embedding) == 0 {
			return nil, errors.New("ollama embed: empty embedding")
		}
		vectors = append(vectors, response.Embedding)
	}
	return vectors, nil
}

func (e *httpEmbedder) post(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s embed: create request: %w", e.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s embed: request failed: %w", e.provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newStatusError(e.provider, resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s embed: read response: %w", e.provider, err)
	}
	return body, nil
}

// unsupportedEmbedder stands in for chat-only backends.
type unsupportedEmbedder struct {
	provider string
}

func (u unsupportedEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%s embeddings: %w", u.provider, ErrUnsupportedOperation)
}
