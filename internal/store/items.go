package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const itemColumns = `id, workspace_id, name, content, category, meta, embedding,
			related_item_ids, is_verified, expires_at, source_id, created_at, updated_at`

const notExpired = `(expires_at IS NULL OR expires_at > now())`

func scanItem(row interface{ Scan(...any) error }, extra ...any) (*Item, error) {
	var it Item
	var meta []byte
	var embedding sql.Null[pgvector.Vector]
	var expires sql.NullTime
	targets := []any{&it.ID, &it.WorkspaceID, &it.Name, &it.Content, &it.Category, &meta, &embedding,
		pq.Array(&it.RelatedItemIDs), &it.IsVerified, &expires, &it.SourceID, &it.CreatedAt, &it.UpdatedAt}
	if err := row.Scan(append(targets, extra...)...); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &it.Meta); err != nil {
			return nil, fmt.Errorf("decode item meta: %w", err)
		}
	}
	if embedding.Valid {
		v := embedding.V
		it.Embedding = &v
	}
	it.ExpiresAt = timePtr(expires)
	return &it, nil
}

func collectItems(rows *sql.Rows, withSimilarity bool) ([]Item, error) {
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var sim float64
		var extra []any
		if withSimilarity {
			extra = append(extra, &sim)
		}
		it, err := scanItem(rows, extra...)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Similarity = sim
		out = append(out, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

func vectorArg(v *pgvector.Vector) any {
	if v == nil {
		return nil
	}
	return *v
}

// SimilarItems returns non-expired items whose cosine similarity to embedding
// exceeds minSimilarity, best first.
func (s *Store) SimilarItems(ctx context.Context, workspaceID string, embedding []float32, minSimilarity float64, limit int, excludeIDs []string) ([]Item, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("similar items: embedding is required")
	}
	if excludeIDs == nil {
		excludeIDs = []string{}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`, 1 - (embedding <=> $2) AS similarity
		FROM bosun.items
		WHERE workspace_id = $1
		  AND embedding IS NOT NULL
		  AND `+notExpired+`
		  AND NOT (id::text = ANY($3))
		  AND 1 - (embedding <=> $2) > $4
		ORDER BY embedding <=> $2
		LIMIT $5
	`, workspaceID, pgvector.NewVector(embedding), pq.Array(excludeIDs), minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("similar items: %w", err)
	}
	return collectItems(rows, true)
}

// KeywordItems matches ILIKE patterns against name or content.
func (s *Store) KeywordItems(ctx context.Context, workspaceID string, patterns []string, limit int) ([]Item, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM bosun.items
		WHERE workspace_id = $1
		  AND `+notExpired+`
		  AND (name ILIKE ANY($2) OR content ILIKE ANY($2))
		ORDER BY updated_at DESC
		LIMIT $3
	`, workspaceID, pq.Array(patterns), limit)
	if err != nil {
		return nil, fmt.Errorf("keyword items: %w", err)
	}
	return collectItems(rows, false)
}

// ItemsByIDs loads non-expired items among ids, up to limit.
func (s *Store) ItemsByIDs(ctx context.Context, workspaceID string, ids []string, limit int) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM bosun.items
		WHERE workspace_id = $1
		  AND id::text = ANY($2)
		  AND `+notExpired+`
		LIMIT $3
	`, workspaceID, pq.Array(ids), limit)
	if err != nil {
		return nil, fmt.Errorf("items by ids: %w", err)
	}
	return collectItems(rows, false)
}

// FindItemByName matches name case-insensitively, expired items included.
func (s *Store) FindItemByName(ctx context.Context, workspaceID, name string) (*Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM bosun.items
		WHERE workspace_id = $1 AND lower(name) = lower($2)
		ORDER BY updated_at DESC
		LIMIT 1
	`, workspaceID, name))
	if err != nil {
		return nil, notFound(err, "find item")
	}
	return it, nil
}

// InsertItem stores it unverified, assigning an id when empty.
func (s *Store) InsertItem(ctx context.Context, it *Item) (string, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.Category == "" {
		it.Category = "general"
	}
	meta, err := json.Marshal(it.Meta)
	if err != nil {
		return "", fmt.Errorf("encode item meta: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bosun.items (
			id, workspace_id, name, content, category, meta, embedding, is_verified, expires_at, source_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9)
	`, it.ID, it.WorkspaceID, it.Name, it.Content, it.Category, meta, vectorArg(it.Embedding),
		nullTime(it.ExpiresAt), it.SourceID); err != nil {
		return "", fmt.Errorf("insert item: %w", err)
	}
	return it.ID, nil
}

// UpdateItem rewrites an existing item in place. A nil embedding keeps the
// stored one. The item goes back to unverified so it is relinked.
func (s *Store) UpdateItem(ctx context.Context, it *Item) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bosun.items SET
			name = $3,
			content = $4,
			category = $5,
			embedding = COALESCE($6, embedding),
			expires_at = $7,
			is_verified = false,
			updated_at = now()
		WHERE workspace_id = $1 AND id = $2
	`, it.WorkspaceID, it.ID, it.Name, it.Content, it.Category, vectorArg(it.Embedding), nullTime(it.ExpiresAt))
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update item: %w", ErrNotFound)
	}
	return nil
}

// DeleteItemByName hard-deletes items whose name matches case-insensitively.
func (s *Store) DeleteItemByName(ctx context.Context, workspaceID, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM bosun.items
		WHERE workspace_id = $1 AND lower(name) = lower($2)
	`, workspaceID, name)
	if err != nil {
		return 0, fmt.Errorf("delete item: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListItems returns the newest items, optionally filtered by category.
func (s *Store) ListItems(ctx context.Context, workspaceID, category string, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM bosun.items
		WHERE workspace_id = $1 AND ($2 = '' OR category = $2)
		ORDER BY updated_at DESC
		LIMIT $3
	`, workspaceID, category, limit)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return collectItems(rows, false)
}

// UnverifiedItems returns the oldest unverified items.
func (s *Store) UnverifiedItems(ctx context.Context, workspaceID string, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM bosun.items
		WHERE workspace_id = $1 AND NOT is_verified
		ORDER BY created_at
		LIMIT $2
	`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("unverified items: %w", err)
	}
	return collectItems(rows, false)
}

// RecentVerifiedItems returns the newest verified, non-expired items.
func (s *Store) RecentVerifiedItems(ctx context.Context, workspaceID string, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM bosun.items
		WHERE workspace_id = $1 AND is_verified AND `+notExpired+`
		ORDER BY updated_at DESC
		LIMIT $2
	`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent verified items: %w", err)
	}
	return collectItems(rows, false)
}

// MarkVerified records the item's relations and, when given, its embedding.
func (s *Store) MarkVerified(ctx context.Context, itemID string, related []string, embedding []float32) error {
	if len(related) > MaxRelatedItems {
		related = related[:MaxRelatedItems]
	}
	if related == nil {
		related = []string{}
	}
	var vec any
	if len(embedding) > 0 {
		vec = pgvector.NewVector(embedding)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bosun.items
		SET related_item_ids = $2, is_verified = true, embedding = COALESCE($3, embedding), updated_at = now()
		WHERE id = $1
	`, itemID, pq.Array(related), vec)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark verified: %w", ErrNotFound)
	}
	return nil
}

// ItemAge is a helper for recency scoring.
func (it Item) Age(now time.Time) time.Duration {
	ts := it.UpdatedAt
	if ts.IsZero() {
		ts = it.CreatedAt
	}
	return now.Sub(ts)
}
