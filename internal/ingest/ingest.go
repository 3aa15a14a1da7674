// Package ingest grows and maintains the knowledge base: structured uploads,
// extraction of items from social posts, and the linking pass that relates
// and verifies new items.
package ingest

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"

	"bosun/internal/gateway"
	"bosun/pkg/logging"
)

// LinkTrigger schedules a linking pass; *jobs.Enqueuer implements it.
type LinkTrigger interface {
	Link(ctx context.Context, workspaceID string) error
}

// extractJSON trims chatter around the first JSON object in content.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

// embedOrNil embeds text, returning nil when the backend fails.
func embedOrNil(ctx context.Context, client gateway.LLM, text, source string, log *logging.Entry) *pgvector.Vector {
	res, err := client.Embed(ctx, text, gateway.UsageContext{Source: source})
	if err != nil {
		log.WithError(err).Warn("Embedding failed, storing item without a vector")
		return nil
	}
	v := pgvector.NewVector(res.Vector)
	return &v
}

func itemText(name, content string) string {
	return name + "\n" + content
}
