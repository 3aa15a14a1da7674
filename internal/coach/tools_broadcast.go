package coach

import (
	"context"
	"fmt"

	"bosun/internal/platform"
	"bosun/internal/store"
)

type broadcastArgs struct {
	Keyword string `json:"keyword" validate:"required,min=2,max=100"`
	Message string `json:"message" validate:"required,max=1000"`
}

func broadcastTool(d toolDeps) Tool {
	return newTool("broadcast_message",
		"Send a message to every customer who has mentioned a keyword, e.g. everyone who asked about a restocked product.",
		toolParams(map[string]any{
			"keyword": prop("string", "Word or phrase the customers mentioned."),
			"message": prop("string", "The message to send."),
		}, "keyword", "message"),
		func(ctx context.Context, tc ToolContext, a *broadcastArgs) (string, error) {
			if d.sender == nil {
				return "", fmt.Errorf("messaging is not configured")
			}
			targets, err := d.store.BroadcastTargets(ctx, tc.WorkspaceID, a.Keyword)
			if err != nil {
				return "", err
			}
			if len(targets) == 0 {
				return fmt.Sprintf("No customers found who mentioned %q.", a.Keyword), nil
			}

			sent, failed := 0, 0
			for _, target := range targets {
				meta := map[string]any{"keyword": a.Keyword}
				status := store.StatusProcessed
				err := d.sender.Send(ctx, platform.OutboundMessage{
					WorkspaceID: tc.WorkspaceID,
					To:          target.AuthorID,
					Text:        a.Message,
				})
				if err != nil {
					failed++
					status = store.StatusFailed
					meta["error"] = err.Error()
					tc.Logger.WithError(err).WithField("author_id", target.AuthorID).Warn("Broadcast delivery failed")
				} else {
					sent++
				}

				if _, err := d.store.CreateInteraction(ctx, &store.Interaction{
					WorkspaceID: tc.WorkspaceID,
					CustomerID:  target.CustomerID,
					AuthorID:    target.AuthorID,
					AuthorName:  target.AuthorName,
					Origin:      store.OriginBroadcast,
					Status:      status,
					Content:     a.Message,
					Metadata:    meta,
				}); err != nil {
					tc.Logger.WithError(err).WithField("author_id", target.AuthorID).Warn("Failed to log broadcast")
				}
			}
			return fmt.Sprintf("Broadcast to customers who mentioned %q: %d sent, %d failed.", a.Keyword, sent, failed), nil
		})
}
