package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bosun/internal/gateway"
	"bosun/internal/store"
	"bosun/pkg/llm"
	"bosun/pkg/logging"
)

const (
	DefaultLinkBatchSize      = 20
	DefaultLinkCandidateLimit = 30

	// PeerSimilarity is the vector similarity above which items are related
	// without asking the model.
	PeerSimilarity = 0.7

	candidateContentLength = 200
)

const linkPrompt = `You maintain a small business's knowledge base. Given one new entry and a list of existing entries,
pick the existing entries a customer asking about the new entry would also want to know about
(same product line, accessories, applicable policies, related promotions).
Return only JSON: {"related":["<id>", ...]}. Use ids from the list only. Return {"related":[]} if none apply.`

type LinkStore interface {
	UnverifiedItems(ctx context.Context, workspaceID string, limit int) ([]store.Item, error)
	RecentVerifiedItems(ctx context.Context, workspaceID string, limit int) ([]store.Item, error)
	SimilarItems(ctx context.Context, workspaceID string, embedding []float32, minSimilarity float64, limit int, excludeIDs []string) ([]store.Item, error)
	MarkVerified(ctx context.Context, itemID string, related []string, embedding []float32) error
}

type LinkReport struct {
	Processed int
	Failed    int
}

type LinkerConfig struct {
	Store          LinkStore
	Gateway        gateway.ClientSource
	BatchSize      int
	CandidateLimit int
	Logger         logging.Logger
}

type Linker struct {
	store          LinkStore
	gateway        gateway.ClientSource
	batchSize      int
	candidateLimit int
	logger         logging.Logger
}

func NewLinker(cfg LinkerConfig) *Linker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultLinkBatchSize
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultLinkCandidateLimit
	}
	return &Linker{
		store:          cfg.Store,
		gateway:        cfg.Gateway,
		batchSize:      cfg.BatchSize,
		candidateLimit: cfg.CandidateLimit,
		logger:         logging.OrDiscard(cfg.Logger),
	}
}

// LinkAndVerifyKB relates and verifies unverified items batch by batch until
// none remain or a batch brings nothing new. Item failures are logged and
// counted; the item stays unverified for the next pass.
func (l *Linker) LinkAndVerifyKB(ctx context.Context, workspaceID string) (LinkReport, error) {
	log := l.logger.WithField("workspace_id", workspaceID)
	client, err := l.gateway.Client(ctx, workspaceID, gateway.RoleCoach)
	if err != nil {
		return LinkReport{}, fmt.Errorf("link client: %w", err)
	}

	var report LinkReport
	// Failed items stay unverified and keep their place at the front of the
	// queue, so each fetch is widened by the number of failures so far.
	failed := map[string]struct{}{}
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := l.store.UnverifiedItems(ctx, workspaceID, l.batchSize+len(failed))
		if err != nil {
			return report, fmt.Errorf("load unverified items: %w", err)
		}

		var fresh []store.Item
		for _, it := range batch {
			if _, seen := failed[it.ID]; !seen && len(fresh) < l.batchSize {
				fresh = append(fresh, it)
			}
		}
		if len(fresh) == 0 {
			break
		}

		batchIDs := make([]string, 0, len(fresh))
		for _, it := range fresh {
			batchIDs = append(batchIDs, it.ID)
		}
		recent, err := l.store.RecentVerifiedItems(ctx, workspaceID, l.candidateLimit)
		if err != nil {
			return report, fmt.Errorf("load verified items: %w", err)
		}

		progress := 0
		for _, it := range fresh {
			if err := l.linkItem(ctx, client, workspaceID, it, batchIDs, recent); err != nil {
				failed[it.ID] = struct{}{}
				report.Failed++
				itemsLinked.WithLabelValues("failed").Inc()
				log.WithError(err).WithField("item_id", it.ID).Warn("Failed to link item")
				continue
			}
			progress++
			report.Processed++
			itemsLinked.WithLabelValues("verified").Inc()
		}
		if progress == 0 {
			break
		}
	}

	log.WithFields(logging.Fields{"processed": report.Processed, "failed": report.Failed}).Info("Knowledge linking finished")
	return report, nil
}

func (l *Linker) linkItem(ctx context.Context, client gateway.LLM, workspaceID string, it store.Item, batchIDs []string, recent []store.Item) error {
	var vector, fresh []float32
	if it.Embedding != nil {
		vector = it.Embedding.Slice()
	} else {
		res, err := client.Embed(ctx, itemText(it.Name, it.Content), gateway.UsageContext{Source: "linker"})
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		vector, fresh = res.Vector, res.Vector
	}

	peers, err := l.store.SimilarItems(ctx, workspaceID, vector, PeerSimilarity, l.candidateLimit, batchIDs)
	if err != nil {
		return fmt.Errorf("peer search: %w", err)
	}

	candidates := make([]store.Item, 0, l.candidateLimit)
	seen := map[string]struct{}{it.ID: {}}
	for _, group := range [][]store.Item{peers, recent} {
		for _, c := range group {
			if len(candidates) == l.candidateLimit {
				break
			}
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			candidates = append(candidates, c)
		}
	}

	related := make([]string, 0, store.MaxRelatedItems)
	for _, p := range peers {
		if p.ID != it.ID {
			related = append(related, p.ID)
		}
	}
	if len(candidates) > 0 {
		picked, err := l.askRelated(ctx, client, it, candidates)
		if err != nil {
			return err
		}
		related = append(related, picked...)
	}
	related = dedupe(related, store.MaxRelatedItems)

	if err := l.store.MarkVerified(ctx, it.ID, related, fresh); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// askRelated returns the candidate ids the model picked, dropping any id
// outside the candidate set.
func (l *Linker) askRelated(ctx context.Context, client gateway.LLM, it store.Item, candidates []store.Item) ([]string, error) {
	allowed := make(map[string]struct{}, len(candidates))
	var b strings.Builder
	fmt.Fprintf(&b, "New entry: %s\n%s\n\nExisting entries:\n", it.Name, truncate(it.Content, candidateContentLength))
	for _, c := range candidates {
		allowed[c.ID] = struct{}{}
		fmt.Fprintf(&b, "- id=%s | %s | %s\n", c.ID, c.Name, truncate(c.Content, candidateContentLength))
	}

	res, err := client.Chat(ctx, gateway.ChatParams{Messages: []llm.Message{
		{Role: "system", Content: linkPrompt},
		{Role: "user", Content: b.String()},
	}}, gateway.UsageContext{Source: "linker"})
	if err != nil {
		return nil, fmt.Errorf("ask related: %w", err)
	}

	var parsed struct {
		Related []string `json:"related"`
	}
	if err := json.Unmarshal([]byte(extractJSON(res.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("parse related: %w", err)
	}
	out := make([]string, 0, len(parsed.Related))
	for _, id := range parsed.Related {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func dedupe(ids []string, limit int) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
