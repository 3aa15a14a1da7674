package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

func (s *Store) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	var pausedAt sql.NullTime
	var rawContext []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, platform_user_id, name, ai_paused, ai_paused_at,
			conversation_state, conversation_context
		FROM bosun.customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.WorkspaceID, &c.PlatformUserID, &c.Name, &c.AIPaused, &pausedAt,
		&c.ConversationState, &rawContext)
	if err != nil {
		return nil, notFound(err, "get customer")
	}
	c.AIPausedAt = timePtr(pausedAt)
	if c.ConversationContext, err = decodeJSONMap(rawContext); err != nil {
		return nil, fmt.Errorf("decode conversation context: %w", err)
	}
	if c.ConversationState == "" {
		c.ConversationState = StateIdle
	}
	return &c, nil
}

// SetConversationState overwrites the customer's state and merges ctxPatch
// into the stored context.
func (s *Store) SetConversationState(ctx context.Context, customerID, state string, ctxPatch map[string]any) error {
	if ctxPatch == nil {
		ctxPatch = map[string]any{}
	}
	raw, err := json.Marshal(ctxPatch)
	if err != nil {
		return fmt.Errorf("encode conversation context: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bosun.customers
		SET conversation_state = $2,
			conversation_context = conversation_context || $3::jsonb
		WHERE id = $1
	`, customerID, state, raw)
	if err != nil {
		return fmt.Errorf("set conversation state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set conversation state: %w", ErrNotFound)
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	var p Post
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, platform_post_id, caption, content
		FROM bosun.posts
		WHERE id = $1
	`, id).Scan(&p.ID, &p.WorkspaceID, &p.PlatformPostID, &p.Caption, &p.Content)
	if err != nil {
		return nil, notFound(err, "get post")
	}
	return &p, nil
}

// UpsertPost stores a platform post keyed by its platform id and returns the
// row id. Caption and content are refreshed on conflict.
func (s *Store) UpsertPost(ctx context.Context, p *Post) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO bosun.posts (id, workspace_id, platform_post_id, caption, content)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workspace_id, platform_post_id) WHERE platform_post_id <> ''
		DO UPDATE SET caption = EXCLUDED.caption, content = EXCLUDED.content
		RETURNING id
	`, p.ID, p.WorkspaceID, p.PlatformPostID, p.Caption, p.Content).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert post: %w", err)
	}
	p.ID = id
	return id, nil
}
