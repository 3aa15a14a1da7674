// Package knowledge retrieves workspace knowledge items for prompts.
//
// The primary path embeds the query and ranks items by cosine similarity in
// Postgres. When the embedding call fails, a keyword ILIKE search is used
// instead and the result is flagged. Either way, each hit pulls in a few of
// its related items.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"bosun/internal/gateway"
	"bosun/internal/store"
	"bosun/pkg/logging"
)

const (
	SimilarityThreshold = 0.5
	MaxVectorResults    = 10
	MaxKeywordResults   = 8
	MaxKeywords         = 5
	MinKeywordLength    = 4
	RelatedPerItem      = 5
)

// Embedder is satisfied by *gateway.Client.
type Embedder interface {
	Embed(ctx context.Context, text string, uc gateway.UsageContext) (*gateway.EmbedResult, error)
}

type ItemStore interface {
	SimilarItems(ctx context.Context, workspaceID string, embedding []float32, minSimilarity float64, limit int, excludeIDs []string) ([]store.Item, error)
	KeywordItems(ctx context.Context, workspaceID string, patterns []string, limit int) ([]store.Item, error)
	ItemsByIDs(ctx context.Context, workspaceID string, ids []string, limit int) ([]store.Item, error)
}

type Result struct {
	Items []store.Item
	// VectorFallback is set when the keyword path replaced the vector path.
	VectorFallback bool
}

// IDs lists item ids in result order.
func (r Result) IDs() []string {
	ids := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

type Retriever struct {
	items  ItemStore
	logger logging.Logger
}

func NewRetriever(items ItemStore, logger logging.Logger) *Retriever {
	return &Retriever{items: items, logger: logging.OrDiscard(logger)}
}

// Retrieve returns knowledge for query. A nil embedder goes straight to the
// keyword path, and so does any failure of the vector path (embedding or
// vector search). Keyword search errors are returned; expansion failures are
// logged and the primary hits kept.
func (r *Retriever) Retrieve(ctx context.Context, embedder Embedder, workspaceID, query string) (Result, error) {
	start := time.Now()
	defer func() { retrievalDuration.Observe(time.Since(start).Seconds()) }()

	var res Result
	vectorOK := false
	if embedder != nil {
		items, err := r.vectorSearch(ctx, embedder, workspaceID, query)
		if err != nil {
			r.logger.WithError(err).WithField("workspace_id", workspaceID).Warn("Vector retrieval failed, using keyword search")
		} else {
			res.Items = items
			vectorOK = true
			retrievalsTotal.WithLabelValues("vector").Inc()
		}
	}
	if !vectorOK {
		items, err := r.items.KeywordItems(ctx, workspaceID, KeywordPatterns(query), MaxKeywordResults)
		if err != nil {
			return Result{}, fmt.Errorf("keyword search: %w", err)
		}
		res.Items = items
		res.VectorFallback = true
		retrievalsTotal.WithLabelValues("keyword").Inc()
	}

	res.Items = r.expand(ctx, workspaceID, res.Items)
	retrievalResults.Observe(float64(len(res.Items)))
	return res, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, embedder Embedder, workspaceID, query string) ([]store.Item, error) {
	emb, err := embedder.Embed(ctx, query, gateway.UsageContext{Source: "retrieval"})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	items, err := r.items.SimilarItems(ctx, workspaceID, emb.Vector, SimilarityThreshold, MaxVectorResults, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return items, nil
}

// expand appends up to RelatedPerItem related items per hit, deduplicated
// by id in first-seen order.
func (r *Retriever) expand(ctx context.Context, workspaceID string, items []store.Item) []store.Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]store.Item, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}

	for _, it := range items {
		var want []string
		for _, id := range it.RelatedItemIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			want = append(want, id)
		}
		if len(want) == 0 {
			continue
		}
		related, err := r.items.ItemsByIDs(ctx, workspaceID, want, RelatedPerItem)
		if err != nil {
			r.logger.WithError(err).WithField("item_id", it.ID).Warn("Failed to load related items")
			continue
		}
		for _, rel := range related {
			if _, ok := seen[rel.ID]; ok {
				continue
			}
			seen[rel.ID] = struct{}{}
			out = append(out, rel)
		}
	}
	return out
}

// foldCase lowercases s. A Caser keeps state, so each call builds its own.
func foldCase(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Keywords extracts up to MaxKeywords distinct lowercased words of at least
// MinKeywordLength runes. Anything that is not a letter or digit separates words.
func Keywords(query string) []string {
	words := strings.FieldsFunc(foldCase(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(words))
	var out []string
	for _, w := range words {
		if utf8.RuneCountInString(w) < MinKeywordLength {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

// KeywordPatterns turns the query keywords into escaped ILIKE patterns.
func KeywordPatterns(query string) []string {
	words := Keywords(query)
	patterns := make([]string, 0, len(words))
	for _, w := range words {
		patterns = append(patterns, "%"+store.EscapeLike(w)+"%")
	}
	return patterns
}
