package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"strings"
	"unicode"
)

// MockProvider is a deterministic offline backend for unconfigured
// environments. It acknowledges the last user message and always reports
// a confident answer.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (MockProvider) Complete(_ context.Context, messages []Message, _ []Tool) (Stream, error) {
	var last string
	var input int
	for _, m := range messages {
		input += EstimateTokens(m.Content)
		if m.Role == "user" {
			last = m.Content
		}
	}
	reply := fmt.Sprintf("Thanks for your message! You asked: %q. A detailed answer will follow.", strings.TrimSpace(last))
	reply += " <confidence>0.90</confidence>"
	return &sliceStream{chunks: []Chunk{
		{Content: reply},
		{Usage: &Usage{InputTokens: input, OutputTokens: EstimateTokens(reply)}},
	}}, nil
}

type sliceStream struct {
	chunks []Chunk
	pos    int
}

func (s *sliceStream) Recv() (Chunk, error) {
	if s.pos >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceStream) Close() error { return nil }

// NewStaticStream returns a Stream that yields chunks in order.
func NewStaticStream(chunks ...Chunk) Stream {
	return &sliceStream{chunks: chunks}
}

const mockDimensions = 64

// MockEmbedder hashes lowercased words into a fixed-size bag-of-words vector,
// so texts sharing vocabulary have high cosine similarity.
type MockEmbedder struct{}

func NewMockEmbedder() *MockEmbedder { return &MockEmbedder{} }

func (MockEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		vec := make([]float32, mockDimensions)
		words := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		for _, w := range words {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[h.Sum32()%mockDimensions]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			n := float32(math.Sqrt(norm))
			for j := range vec {
				vec[j] /= n
			}
		}
		out[i] = vec
	}
	return out, nil
}
