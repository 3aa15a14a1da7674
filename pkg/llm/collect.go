package llm

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Completion is a fully drained stream.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
	// UsageReported is false when the backend sent no token accounting.
	UsageReported bool
}

// Collect drains stream, merging tool-call fragments and summing usage.
// The stream is closed before returning.
func Collect(ctx context.Context, stream Stream) (Completion, error) {
	defer stream.Close()

	var out Completion
	var content strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		content.WriteString(chunk.Content)
		out.ToolCalls = mergeToolCalls(out.ToolCalls, chunk.ToolCalls)
		if chunk.Usage != nil {
			out.UsageReported = true
			if chunk.Usage.InputTokens > 0 {
				out.Usage.InputTokens = chunk.Usage.InputTokens
			}
			if chunk.Usage.OutputTokens > 0 {
				out.Usage.OutputTokens = chunk.Usage.OutputTokens
			}
		}
	}
	out.Content = content.String()
	return out, nil
}

// mergeToolCalls folds streamed fragments into whole calls. A fragment with a
// known ID replaces that call's arguments (cumulative streams); a fragment with
// no ID extends the call at the same index (delta streams).
func mergeToolCalls(existing, incoming []ToolCall) []ToolCall {
	for _, inc := range incoming {
		found := false
		for i := range existing {
			if inc.ID != "" && existing[i].ID == inc.ID {
				if inc.Name != "" {
					existing[i].Name = inc.Name
				}
				if inc.Arguments != "" {
					existing[i].Arguments = inc.Arguments
				}
				found = true
				break
			}
			if inc.ID == "" && existing[i].Index == inc.Index {
				existing[i].Name += inc.Name
				existing[i].Arguments += inc.Arguments
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, inc)
		}
	}
	return existing
}

// EstimateTokens is a whitespace word count, used when a backend reports no usage.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}
