package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Some backends emit tool calls as text instead of structured deltas. Two
// shapes are recognised:
//
//	<tool_call>{"name": "x", "arguments": {...}}</tool_call>
//	<function=x>{...}</function>
var (
	toolCallMarkup = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)
	functionMarkup = regexp.MustCompile(`(?s)<function=([A-Za-z0-9_\-.]+)>\s*(.*?)\s*</function>`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

type inlineCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	// Some models use "parameters" instead.
	Parameters json.RawMessage `json:"parameters"`
}

// ExtractInlineToolCalls parses inline tool-call markup out of text. It
// returns the synthesized calls in order of appearance and text with the
// markup removed. Blocks that do not parse are dropped from the text but
// produce no call.
func ExtractInlineToolCalls(text string) ([]ToolCall, string) {
	type located struct {
		pos  int
		call ToolCall
	}
	var found []located

	for _, m := range toolCallMarkup.FindAllStringSubmatchIndex(text, -1) {
		var ic inlineCall
		if err := json.Unmarshal([]byte(text[m[2]:m[3]]), &ic); err != nil || ic.Name == "" {
			continue
		}
		args := ic.Arguments
		if len(args) == 0 {
			args = ic.Parameters
		}
		found = append(found, located{pos: m[0], call: ToolCall{Name: ic.Name, Arguments: normalizeArguments(args)}})
	}
	for _, m := range functionMarkup.FindAllStringSubmatchIndex(text, -1) {
		found = append(found, located{pos: m[0], call: ToolCall{
			Name:      text[m[2]:m[3]],
			Arguments: normalizeArguments(json.RawMessage(text[m[4]:m[5]])),
		}})
	}

	// Insertion sort keeps the handful of calls in text order.
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].pos < found[j-1].pos; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}
	calls := make([]ToolCall, len(found))
	for i, f := range found {
		f.call.ID = fmt.Sprintf("inline_%d", i)
		f.call.Index = i
		calls[i] = f.call
	}
	return calls, StripToolMarkup(text)
}

// StripToolMarkup removes inline tool-call blocks from text.
func StripToolMarkup(text string) string {
	text = toolCallMarkup.ReplaceAllString(text, "")
	text = functionMarkup.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// normalizeArguments returns "{}" for empty input and passes anything
// else through for the caller to validate.
func normalizeArguments(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "{}"
	}
	// Arguments encoded as a JSON string are unwrapped.
	if strings.HasPrefix(s, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return inner
		}
	}
	return s
}
