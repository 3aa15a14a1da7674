package orchestrator

import (
	"regexp"
	"strings"

	"bosun/pkg/llm"
)

var (
	thinkBlock      = regexp.MustCompile(`(?is)<think>.*?</think>`)
	confidenceTags  = regexp.MustCompile(`(?is)<confidence>[^<]*</confidence>|</?confidence>`)
	leadingRoleName = regexp.MustCompile(`(?i)^\s*(assistant|ai|bot|model|agent)\s*:\s*`)
)

// CleanReply strips reasoning blocks, confidence remnants, inline tool-call
// markup and leading role labels from model output.
func CleanReply(raw string) string {
	s := thinkBlock.ReplaceAllString(raw, "")
	// An unterminated block swallows the rest of the text; a stray closer
	// means everything before it was reasoning.
	if i := strings.LastIndex(strings.ToLower(s), "</think>"); i >= 0 {
		s = s[i+len("</think>"):]
	}
	if i := strings.Index(strings.ToLower(s), "<think>"); i >= 0 {
		s = s[:i]
	}
	s = confidenceTags.ReplaceAllString(s, "")
	s = llm.StripToolMarkup(s)
	for leadingRoleName.MatchString(s) {
		s = leadingRoleName.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}
