package llm

import (
	"context"
	"testing"
)

func TestMergeToolCallsCumulativeByID(t *testing.T) {
	calls := mergeToolCalls(nil, []ToolCall{{ID: "a", Name: "x", Arguments: `{"q`}})
	calls = mergeToolCalls(calls, []ToolCall{{ID: "a", Name: "x", Arguments: `{"q":1}`}})
	calls = mergeToolCalls(calls, []ToolCall{{ID: "b", Name: "y", Arguments: `{}`, Index: 1}})
	if len(calls) != 2 || calls[0].Arguments != `{"q":1}` || calls[1].Name != "y" {
		t.Fatalf("unexpected merge %+v", calls)
	}
}

func TestCollectHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Collect(ctx, NewStaticStream(Chunk{Content: "x"})); err == nil {
		t.Fatal("expected context error")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("  one two\nthree "); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}
