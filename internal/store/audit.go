package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertFeedback records the escalation of an interaction. An interaction
// has at most one feedback row; repeats are ignored.
func (s *Store) InsertFeedback(ctx context.Context, f FeedbackEntry) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bosun.feedback_queue (id, workspace_id, interaction_id, query, context, confidence, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (interaction_id) DO NOTHING
	`, uuid.NewString(), f.WorkspaceID, f.InteractionID, f.Query, f.Context, f.Confidence, f.Reason); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// InsertUsage appends one provider call outcome.
func (s *Store) InsertUsage(ctx context.Context, u UsageEntry) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bosun.usage_logs (
			workspace_id, role, operation, provider, model, tokens_in, tokens_out,
			latency_ms, attempts, success, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.WorkspaceID, u.Role, u.Operation, u.Provider, u.Model, u.TokensIn, u.TokensOut,
		u.LatencyMs, u.Attempts, u.Success, u.Error); err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// MonthStart is the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthlyTokens sums tokens logged for the workspace since the start of the
// current calendar month.
func (s *Store) MonthlyTokens(ctx context.Context, workspaceID string) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(tokens_in + tokens_out), 0)
		FROM bosun.usage_logs
		WHERE workspace_id = $1 AND created_at >= $2
	`, workspaceID, MonthStart(s.now())).Scan(&total); err != nil {
		return 0, fmt.Errorf("monthly tokens: %w", err)
	}
	return total, nil
}
