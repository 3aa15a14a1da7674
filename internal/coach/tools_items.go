package coach

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"bosun/internal/gateway"
	"bosun/internal/knowledge"
	"bosun/internal/store"
)

const (
	// DuplicateSimilarity is the peer similarity above which create_item
	// updates the existing item instead of inserting.
	DuplicateSimilarity = 0.85

	searchMinSimilarity = 0.3
	searchCandidates    = 20
	previewLength       = 120
)

type createItemArgs struct {
	Name      string `json:"name" validate:"required,max=200"`
	Content   string `json:"content" validate:"required"`
	Category  string `json:"category" validate:"required,max=50"`
	ExpiresIn string `json:"expires_in,omitempty"`
}

func createItemTool(d toolDeps) Tool {
	return newTool("create_item",
		"Add a fact, product or policy to the knowledge base. Updates the existing entry when a near-duplicate exists.",
		toolParams(map[string]any{
			"name":       prop("string", "Short title, e.g. the product name."),
			"content":    prop("string", "The full text customers should be told."),
			"category":   prop("string", "Category such as product, policy, faq or promotion."),
			"expires_in": prop("string", "Optional lifetime such as 3d, 2w or 48h. Expired items are no longer used."),
		}, "name", "content", "category"),
		func(ctx context.Context, tc ToolContext, a *createItemArgs) (string, error) {
			now := d.clock()
			var expiresAt *time.Time
			if a.ExpiresIn != "" {
				ttl, err := ParseExpiry(a.ExpiresIn)
				if err != nil {
					return "", err
				}
				t := now.Add(ttl)
				expiresAt = &t
			}

			var embedding *pgvector.Vector
			var existing *store.Item
			emb, err := tc.Client.Embed(ctx, a.Content, gateway.UsageContext{Source: "coach"})
			if err != nil {
				tc.Logger.WithError(err).Warn("Embedding failed, deduplicating by name only")
			} else {
				v := pgvector.NewVector(emb.Vector)
				embedding = &v
				peers, err := d.store.SimilarItems(ctx, tc.WorkspaceID, emb.Vector, DuplicateSimilarity, 1, nil)
				if err != nil {
					return "", err
				}
				if len(peers) > 0 {
					existing = &peers[0]
				}
			}
			if existing == nil {
				existing, err = d.store.FindItemByName(ctx, tc.WorkspaceID, a.Name)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return "", err
				}
			}

			if existing != nil {
				previous := existing.Name
				existing.Name = a.Name
				existing.Content = a.Content
				existing.Category = a.Category
				existing.Embedding = embedding
				if expiresAt != nil {
					existing.ExpiresAt = expiresAt
				}
				if err := d.store.UpdateItem(ctx, existing); err != nil {
					return "", err
				}
				if !strings.EqualFold(previous, a.Name) {
					return fmt.Sprintf("Updated existing item %q (now %q) instead of adding a duplicate.", previous, a.Name), nil
				}
				return fmt.Sprintf("Updated existing item %q.", a.Name), nil
			}

			it := &store.Item{
				WorkspaceID: tc.WorkspaceID,
				Name:        a.Name,
				Content:     a.Content,
				Category:    a.Category,
				Embedding:   embedding,
				ExpiresAt:   expiresAt,
			}
			if _, err := d.store.InsertItem(ctx, it); err != nil {
				return "", err
			}
			msg := fmt.Sprintf("Added %q to the knowledge base under %s.", a.Name, a.Category)
			if expiresAt != nil {
				msg += fmt.Sprintf(" It expires on %s.", expiresAt.Format("2006-01-02 15:04"))
			}
			return msg, nil
		})
}

type listItemsArgs struct {
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty" validate:"omitempty,min=1,max=50"`
}

func listItemsTool(d toolDeps) Tool {
	return newTool("list_items",
		"List knowledge base items, newest first.",
		toolParams(map[string]any{
			"category": prop("string", "Only list this category."),
			"limit":    prop("integer", "Maximum items to list, up to 50 (default 20)."),
		}),
		func(ctx context.Context, tc ToolContext, a *listItemsArgs) (string, error) {
			limit := a.Limit
			if limit == 0 {
				limit = 20
			}
			items, err := d.store.ListItems(ctx, tc.WorkspaceID, a.Category, limit)
			if err != nil {
				return "", err
			}
			if len(items) == 0 {
				return "No knowledge items found.", nil
			}
			now := d.clock()
			var b strings.Builder
			fmt.Fprintf(&b, "%d knowledge item(s):", len(items))
			for _, it := range items {
				fmt.Fprintf(&b, "\n- %s [%s]", it.Name, it.Category)
				switch {
				case it.ExpiresAt != nil && !it.ExpiresAt.After(now):
					b.WriteString(" (expired)")
				case !it.IsVerified:
					b.WriteString(" (unverified)")
				}
			}
			return b.String(), nil
		})
}

type searchItemsArgs struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit,omitempty" validate:"omitempty,min=1,max=20"`
}

type scoredItem struct {
	item  store.Item
	score float64
}

func searchItemsTool(d toolDeps) Tool {
	return newTool("search_items",
		"Search the knowledge base the way customers' questions are matched.",
		toolParams(map[string]any{
			"query": prop("string", "What to look for."),
			"limit": prop("integer", "Maximum results, up to 20 (default 5)."),
		}, "query"),
		func(ctx context.Context, tc ToolContext, a *searchItemsArgs) (string, error) {
			limit := a.Limit
			if limit == 0 {
				limit = 5
			}
			candidates := map[string]store.Item{}
			var order []string
			add := func(items []store.Item) {
				for _, it := range items {
					if prev, ok := candidates[it.ID]; ok {
						if it.Similarity > prev.Similarity {
							candidates[it.ID] = it
						}
						continue
					}
					candidates[it.ID] = it
					order = append(order, it.ID)
				}
			}

			emb, err := tc.Client.Embed(ctx, a.Query, gateway.UsageContext{Source: "coach"})
			if err != nil {
				tc.Logger.WithError(err).Warn("Embedding failed, searching by keyword only")
			} else {
				similar, err := d.store.SimilarItems(ctx, tc.WorkspaceID, emb.Vector, searchMinSimilarity, searchCandidates, nil)
				if err != nil {
					return "", err
				}
				add(similar)
			}
			keyword, err := d.store.KeywordItems(ctx, tc.WorkspaceID, knowledge.KeywordPatterns(a.Query), searchCandidates)
			if err != nil {
				return "", err
			}
			add(keyword)

			if len(order) == 0 {
				return fmt.Sprintf("No knowledge items match %q.", a.Query), nil
			}

			now := d.clock()
			ranked := make([]scoredItem, 0, len(order))
			for _, id := range order {
				it := candidates[id]
				score := knowledge.HybridScore(it.Similarity,
					knowledge.KeywordScore(a.Query, it.Name+" "+it.Content),
					knowledge.RecencyScore(it.Age(now)))
				ranked = append(ranked, scoredItem{item: it, score: score})
			}
			sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
			if len(ranked) > limit {
				ranked = ranked[:limit]
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Top %d result(s) for %q:", len(ranked), a.Query)
			for i, r := range ranked {
				fmt.Fprintf(&b, "\n%d. %s [%s] (score %.2f): %s", i+1, r.item.Name, r.item.Category, r.score, preview(r.item.Content))
			}
			return b.String(), nil
		})
}

type deleteItemArgs struct {
	Name string `json:"name" validate:"required"`
}

func deleteItemTool(d toolDeps) Tool {
	return newTool("delete_item",
		"Delete a knowledge base item by its exact name (case-insensitive).",
		toolParams(map[string]any{
			"name": prop("string", "Exact item name."),
		}, "name"),
		func(ctx context.Context, tc ToolContext, a *deleteItemArgs) (string, error) {
			n, err := d.store.DeleteItemByName(ctx, tc.WorkspaceID, a.Name)
			if err != nil {
				return "", err
			}
			switch n {
			case 0:
				return fmt.Sprintf("No item named %q found.", a.Name), nil
			case 1:
				return fmt.Sprintf("Deleted %q.", a.Name), nil
			default:
				return fmt.Sprintf("Deleted %d items named %q.", n, a.Name), nil
			}
		})
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength]) + "…"
}
