package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const interactionColumns = `id, workspace_id, COALESCE(customer_id::text, ''), COALESCE(post_id::text, ''),
			author_id, author_name, platform_message_id, origin, content, response, status,
			metadata, created_at`

func scanInteraction(row interface{ Scan(...any) error }) (*Interaction, error) {
	var in Interaction
	var raw []byte
	if err := row.Scan(&in.ID, &in.WorkspaceID, &in.CustomerID, &in.PostID,
		&in.AuthorID, &in.AuthorName, &in.PlatformMessageID, &in.Origin, &in.Content, &in.Response, &in.Status,
		&raw, &in.CreatedAt); err != nil {
		return nil, err
	}
	meta, err := decodeJSONMap(raw)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	in.Metadata = meta
	return &in, nil
}

func (s *Store) GetInteraction(ctx context.Context, id string) (*Interaction, error) {
	in, err := scanInteraction(s.db.QueryRowContext(ctx, `
		SELECT `+interactionColumns+`
		FROM bosun.interactions
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err, "get interaction")
	}
	return in, nil
}

// AuthorHistory returns up to limit interactions by the same author created
// before the given one, oldest first.
func (s *Store) AuthorHistory(ctx context.Context, workspaceID, authorID, excludeID string, before time.Time, limit int) ([]Interaction, error) {
	if authorID == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+interactionColumns+`
		FROM bosun.interactions
		WHERE workspace_id = $1 AND author_id = $2 AND id <> $3 AND created_at <= $4
		ORDER BY created_at DESC
		LIMIT $5
	`, workspaceID, authorID, excludeID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("author history: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CompleteInteraction sets response and status and merges metadata into the
// stored bag. It is the single write the orchestrator makes per attempt.
func (s *Store) CompleteInteraction(ctx context.Context, id, response, status string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bosun.interactions
		SET response = $2, status = $3, metadata = metadata || $4::jsonb, updated_at = now()
		WHERE id = $1
	`, id, response, status, raw)
	if err != nil {
		return fmt.Errorf("complete interaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete interaction: %w", ErrNotFound)
	}
	return nil
}

// CreateInteraction inserts in, assigning an id when empty. Inserting an id
// that already exists is a no-op.
func (s *Store) CreateInteraction(ctx context.Context, in *Interaction) (string, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if in.Origin == "" {
		in.Origin = OriginCustomer
	}
	meta := in.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bosun.interactions (
			id, workspace_id, customer_id, post_id, author_id, author_name,
			platform_message_id, origin, content, response, status, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, in.ID, in.WorkspaceID, nullString(in.CustomerID), nullString(in.PostID), in.AuthorID, in.AuthorName,
		in.PlatformMessageID, in.Origin, in.Content, in.Response, in.Status, raw); err != nil {
		return "", fmt.Errorf("create interaction: %w", err)
	}
	return in.ID, nil
}

// BroadcastTargets returns distinct customers whose inbound messages contain
// keyword, case-insensitively.
func (s *Store) BroadcastTargets(ctx context.Context, workspaceID, keyword string) ([]BroadcastTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (i.author_id) COALESCE(i.customer_id::text, ''), i.author_id, i.author_name
		FROM bosun.interactions i
		WHERE i.workspace_id = $1
		  AND i.origin = 'customer'
		  AND i.author_id <> ''
		  AND i.content ILIKE $2 ESCAPE '\'
		ORDER BY i.author_id, i.created_at DESC
	`, workspaceID, "%"+EscapeLike(keyword)+"%")
	if err != nil {
		return nil, fmt.Errorf("broadcast targets: %w", err)
	}
	defer rows.Close()

	var out []BroadcastTarget
	for rows.Next() {
		var t BroadcastTarget
		if err := rows.Scan(&t.CustomerID, &t.AuthorID, &t.AuthorName); err != nil {
			return nil, fmt.Errorf("scan broadcast target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InboundContents returns customer message bodies created since since.
func (s *Store) InboundContents(ctx context.Context, workspaceID string, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content
		FROM bosun.interactions
		WHERE workspace_id = $1 AND origin = 'customer' AND created_at >= $2
	`, workspaceID, since)
	if err != nil {
		return nil, fmt.Errorf("inbound contents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EscapeLike neutralises LIKE metacharacters for use with ESCAPE '\'.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
