package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"bosun/internal/gateway"
	"bosun/internal/store"
	"bosun/pkg/llm"
	"bosun/pkg/logging"
)

const extractionPrompt = `You extract knowledge base entries for a small business from one of its social media posts.
Return only JSON matching this schema, with no other text:
{"items":[{"name":"short title","content":"facts a customer could ask about: product, price, availability, dates, policies","category":"product|promotion|policy|event|faq"}]}
Only include facts stated in the post. Return {"items":[]} when there is nothing worth keeping.`

type PostStore interface {
	GetPost(ctx context.Context, id string) (*store.Post, error)
	InsertItem(ctx context.Context, it *store.Item) (string, error)
}

type IngestReport struct {
	Created  int
	Rejected int
}

type candidate struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

type Extractor struct {
	store   PostStore
	gateway gateway.ClientSource
	links   LinkTrigger
	logger  logging.Logger
}

func NewExtractor(posts PostStore, gw gateway.ClientSource, links LinkTrigger, logger logging.Logger) *Extractor {
	return &Extractor{store: posts, gateway: gw, links: links, logger: logging.OrDiscard(logger)}
}

// IngestPost turns a post into unverified knowledge items. A reply that is
// not valid JSON is an error; individual candidates without a name or
// content are rejected and counted.
func (e *Extractor) IngestPost(ctx context.Context, postID string) (IngestReport, error) {
	post, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return IngestReport{}, fmt.Errorf("load post %s: %w", postID, err)
	}
	log := e.logger.WithFields(logging.Fields{"workspace_id": post.WorkspaceID, "post_id": post.ID})

	body := PostMarkdown(post, log)
	if body == "" {
		log.Info("Post has no text, nothing to extract")
		return IngestReport{}, nil
	}

	client, err := e.gateway.Client(ctx, post.WorkspaceID, gateway.RoleCoach)
	if err != nil {
		return IngestReport{}, fmt.Errorf("extraction client: %w", err)
	}
	res, err := client.Chat(ctx, gateway.ChatParams{Messages: []llm.Message{
		{Role: "system", Content: extractionPrompt},
		{Role: "user", Content: body},
	}}, gateway.UsageContext{Source: "ingest"})
	if err != nil {
		return IngestReport{}, fmt.Errorf("extract items: %w", err)
	}

	var parsed struct {
		Items []candidate `json:"items"`
	}
	if err := json.Unmarshal([]byte(extractJSON(res.Content)), &parsed); err != nil {
		return IngestReport{}, fmt.Errorf("parse extraction: %w", err)
	}

	var report IngestReport
	for _, c := range parsed.Items {
		c.Name, c.Content = strings.TrimSpace(c.Name), strings.TrimSpace(c.Content)
		if c.Name == "" || c.Content == "" {
			report.Rejected++
			continue
		}
		it := &store.Item{
			WorkspaceID: post.WorkspaceID,
			Name:        c.Name,
			Content:     c.Content,
			Category:    strings.ToLower(strings.TrimSpace(c.Category)),
			SourceID:    post.ID,
			Embedding:   embedOrNil(ctx, client, itemText(c.Name, c.Content), "ingest", log),
		}
		if _, err := e.store.InsertItem(ctx, it); err != nil {
			return report, fmt.Errorf("insert extracted item: %w", err)
		}
		report.Created++
	}
	itemsCreated.WithLabelValues("post").Add(float64(report.Created))

	if report.Created > 0 && e.links != nil {
		if err := e.links.Link(ctx, post.WorkspaceID); err != nil {
			log.WithError(err).Warn("Failed to trigger knowledge linking")
		}
	}
	log.WithFields(logging.Fields{"created": report.Created, "rejected": report.Rejected}).Info("Post ingested")
	return report, nil
}

// PostMarkdown joins the caption and the post body, converting HTML bodies
// to markdown. Conversion failures fall back to the raw body.
func PostMarkdown(post *store.Post, log *logging.Entry) string {
	var parts []string
	caption := strings.TrimSpace(post.Caption)
	if caption != "" {
		parts = append(parts, caption)
	}
	body := strings.TrimSpace(post.Content)
	if body != "" && strings.Contains(body, "<") {
		md, err := htmltomarkdown.ConvertString(body)
		if err != nil {
			log.WithError(err).Warn("HTML conversion failed, using raw post body")
		} else {
			body = strings.TrimSpace(md)
		}
	}
	if body != "" && body != caption {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n\n")
}
