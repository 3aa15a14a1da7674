package llm

import (
	"context"
	"strings"
	"testing"
)

type echoProvider struct{}

func (echoProvider) Complete(_ context.Context, messages []Message, _ []Tool) (Stream, error) {
	return NewStaticStream(Chunk{Content: messages[len(messages)-1].Content}), nil
}

func TestRegisterCustomProvider(t *testing.T) {
	Register("echo-test", func(Config) (Provider, error) { return echoProvider{}, nil })

	p, err := NewProvider(Config{Provider: "ECHO-TEST"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	stream, err := p.Complete(context.Background(), []Message{{Role: "user", Content: "ping"}}, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	out, err := Collect(context.Background(), stream)
	if err != nil || out.Content != "ping" {
		t.Fatalf("unexpected output %q %v", out.Content, err)
	}

	found := false
	for _, name := range Providers() {
		if name == "echo-test" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected echo-test in provider list")
	}
}

func TestUnknownProvider(t *testing.T) {
	if _, err := NewProvider(Config{Provider: "nope"}); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
	if _, err := NewEmbedder(Config{Provider: "nope"}); err == nil {
		t.Fatal("expected unknown embedder error")
	}
}

func TestMockProviderIsDeterministic(t *testing.T) {
	p, err := NewProvider(Config{Provider: "mock"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	run := func() Completion {
		stream, err := p.Complete(context.Background(), []Message{{Role: "user", Content: "hours?"}}, nil)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		out, err := Collect(context.Background(), stream)
		if err != nil {
			t.Fatalf("collect: %v", err)
		}
		return out
	}
	a, b := run(), run()
	if a.Content != b.Content {
		t.Fatalf("mock output differs: %q vs %q", a.Content, b.Content)
	}
	if !strings.Contains(a.Content, "<confidence>") || !a.UsageReported {
		t.Fatalf("expected confidence tag and usage, got %+v", a)
	}
}

func TestMockEmbedderSharedVocabulary(t *testing.T) {
	vecs, err := NewMockEmbedder().Embed(context.Background(), []string{"red dress", "Red Dress!", "garden hose"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	dot := func(a, b []float32) float32 {
		var s float32
		for i := range a {
			s += a[i] * b[i]
		}
		return s
	}
	if d := dot(vecs[0], vecs[1]); d < 0.99 {
		t.Fatalf("expected near-identical vectors, got %v", d)
	}
	if dot(vecs[0], vecs[2]) >= dot(vecs[0], vecs[1]) {
		t.Fatal("expected unrelated text to score lower")
	}
}
