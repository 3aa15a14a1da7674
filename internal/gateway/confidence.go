package gateway

import (
	"regexp"
	"strconv"
	"strings"

	"bosun/pkg/llm"
)

const confidenceInstruction = "After your answer, append your confidence that the answer is correct and " +
	"fully supported by the provided knowledge, formatted exactly as <confidence>0.00-1.00</confidence>."

var confidenceTag = regexp.MustCompile(`(?is)<confidence>\s*([0-9]*\.?[0-9]+)?\s*</confidence>`)

// ParseConfidence extracts the last confidence tag from content and strips
// every tag. A missing or unparseable tag yields 1.0; values are clamped to [0,1].
func ParseConfidence(content string) (string, float64) {
	matches := confidenceTag.FindAllStringSubmatch(content, -1)
	confidence := 1.0
	if len(matches) > 0 {
		if v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64); err == nil {
			confidence = min(max(v, 0), 1)
		}
	}
	cleaned := confidenceTag.ReplaceAllString(content, "")
	return strings.TrimSpace(cleaned), confidence
}

func withConfidenceInstruction(msgs []llm.Message) []llm.Message {
	out := make([]llm.Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	for i := range out {
		if out[i].Role == "system" {
			out[i].Content = strings.TrimSpace(out[i].Content) + "\n\n" + confidenceInstruction
			return out
		}
	}
	return append([]llm.Message{{Role: "system", Content: confidenceInstruction}}, out...)
}
