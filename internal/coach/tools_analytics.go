package coach

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"bosun/internal/store"
)

const (
	TopIntents   = 5
	intentLength = 3
)

var timeframes = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

var orderStatuses = []string{
	store.OrderPending, store.OrderNegotiating, store.OrderConfirmed,
	store.OrderCompleted, store.OrderRejected, store.OrderCancelled,
}

type analyticsArgs struct {
	Timeframe string `json:"timeframe" validate:"required,oneof=24h 7d 30d 90d"`
}

func analyticsTool(d toolDeps) Tool {
	return newTool("view_analytics",
		"Summarise orders and the most common customer questions over a period.",
		toolParams(map[string]any{
			"timeframe": enumProp("Period to summarise.", "24h", "7d", "30d", "90d"),
		}, "timeframe"),
		func(ctx context.Context, tc ToolContext, a *analyticsArgs) (string, error) {
			since := d.clock().Add(-timeframes[a.Timeframe])
			counts, err := d.store.OrderCountsSince(ctx, tc.WorkspaceID, since)
			if err != nil {
				return "", err
			}
			contents, err := d.store.InboundContents(ctx, tc.WorkspaceID, since)
			if err != nil {
				return "", err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Analytics for the last %s:\n", a.Timeframe)
			total := 0
			var parts []string
			for _, status := range orderStatuses {
				if n := counts[status]; n > 0 {
					total += n
					parts = append(parts, fmt.Sprintf("%d %s", n, status))
				}
			}
			if total == 0 {
				b.WriteString("Orders: none")
			} else {
				fmt.Fprintf(&b, "Orders: %d (%s)", total, strings.Join(parts, ", "))
			}

			fmt.Fprintf(&b, "\nCustomer messages: %d", len(contents))
			intents := RecurringIntents(contents, TopIntents)
			if len(intents) == 0 {
				b.WriteString("\nNo recurring questions yet.")
				return b.String(), nil
			}
			b.WriteString("\nTop recurring questions:")
			for i, in := range intents {
				fmt.Fprintf(&b, "\n%d. %q (%d)", i+1, in.Phrase, in.Count)
			}
			return b.String(), nil
		})
}

type Intent struct {
	Phrase string
	Count  int
}

// RecurringIntents groups messages by their normalized leading three words
// and returns the n most frequent phrases seen at least twice, ties broken
// alphabetically.
func RecurringIntents(contents []string, n int) []Intent {
	lower := cases.Lower(language.Und)
	freq := map[string]int{}
	for _, c := range contents {
		words := strings.FieldsFunc(lower.String(c), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})
		if len(words) == 0 {
			continue
		}
		if len(words) > intentLength {
			words = words[:intentLength]
		}
		freq[strings.Join(words, " ")]++
	}

	out := make([]Intent, 0, len(freq))
	for phrase, count := range freq {
		if count >= 2 {
			out = append(out, Intent{Phrase: phrase, Count: count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Phrase < out[j].Phrase
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
