// Package orchestrator turns one inbound customer interaction into a reply:
// policy gates, an optional scripted workflow, retrieval-augmented
// generation, escalation and asynchronous delivery.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bosun/internal/gateway"
	"bosun/internal/knowledge"
	"bosun/internal/platform"
	"bosun/internal/store"
	"bosun/pkg/llm"
	"bosun/pkg/logging"
)

const (
	PauseSentinel    = "AI responses are paused for this workspace."
	TakeoverSentinel = "Human takeover active; AI reply skipped."
	ApologyReply     = "Sorry, I'm having trouble answering right now. Our team will get back to you shortly."
	HoldingReply     = "Thanks for your patience! A team member will follow up shortly."

	ConfidenceThreshold = 0.7
	HistoryTurns        = 15

	DefaultDispatchTimeout = 30 * time.Second

	systemAuthor = "system"
)

var alertNamespace = uuid.MustParse("6f1c2a0e-4b7d-5e39-9a64-2d8c1f0b7e53")

// alertID is stable per escalated interaction so a redelivered job cannot
// raise a second alert.
func alertID(interactionID string) string {
	return uuid.NewSHA1(alertNamespace, []byte(interactionID+":alert")).String()
}

// Store is the persistence the processor needs; *store.Store implements it.
type Store interface {
	GetInteraction(ctx context.Context, id string) (*store.Interaction, error)
	GetWorkspace(ctx context.Context, id string) (*store.Workspace, error)
	GetCustomer(ctx context.Context, id string) (*store.Customer, error)
	GetPost(ctx context.Context, id string) (*store.Post, error)
	AuthorHistory(ctx context.Context, workspaceID, authorID, excludeID string, before time.Time, limit int) ([]store.Interaction, error)
	CompleteInteraction(ctx context.Context, id, response, status string, metadata map[string]any) error
	CreateInteraction(ctx context.Context, in *store.Interaction) (string, error)
	InsertFeedback(ctx context.Context, f store.FeedbackEntry) error
}

// Workflow runs scripted conversation flows. handled=false, or an empty
// reply, hands the message to generation.
type Workflow interface {
	ProcessStateMachine(ctx context.Context, customerID, state string, convCtx map[string]any, message string) (reply string, handled bool, err error)
}

// NopWorkflow never handles a message.
type NopWorkflow struct{}

func (NopWorkflow) ProcessStateMachine(context.Context, string, string, map[string]any, string) (string, bool, error) {
	return "", false, nil
}

type Retriever interface {
	Retrieve(ctx context.Context, embedder knowledge.Embedder, workspaceID, query string) (knowledge.Result, error)
}

// Sender delivers replies; *platform.Outbound implements it.
type Sender interface {
	Send(ctx context.Context, msg platform.OutboundMessage) error
}

// LinkTrigger schedules a knowledge linking pass; *jobs.Enqueuer implements it.
type LinkTrigger interface {
	Link(ctx context.Context, workspaceID string) error
}

type Outcome struct {
	Status    string
	Response  string
	Escalated bool
}

type Config struct {
	Store     Store
	Gateway   gateway.ClientSource
	Retriever Retriever
	Workflow  Workflow
	Sender    Sender
	Links     LinkTrigger
	Logger    logging.Logger

	DispatchTimeout time.Duration
}

type Processor struct {
	store           Store
	gateway         gateway.ClientSource
	retriever       Retriever
	workflow        Workflow
	sender          Sender
	links           LinkTrigger
	logger          logging.Logger
	dispatchTimeout time.Duration

	wg sync.WaitGroup
}

func NewProcessor(cfg Config) *Processor {
	if cfg.Workflow == nil {
		cfg.Workflow = NopWorkflow{}
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	return &Processor{
		store:           cfg.Store,
		gateway:         cfg.Gateway,
		retriever:       cfg.Retriever,
		workflow:        cfg.Workflow,
		sender:          cfg.Sender,
		links:           cfg.Links,
		logger:          logging.OrDiscard(cfg.Logger),
		dispatchTimeout: cfg.DispatchTimeout,
	}
}

// Wait blocks until in-flight dispatches finish.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Process handles one interaction. Returned errors are transient (store or
// quota-check failures) and leave the interaction PENDING for redelivery;
// policy failures end in a terminal status instead.
func (p *Processor) Process(ctx context.Context, interactionID string) (Outcome, error) {
	in, err := p.store.GetInteraction(ctx, interactionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load interaction %s: %w", interactionID, err)
	}
	log := p.logger.WithFields(logging.Fields{
		"interaction_id": in.ID,
		"workspace_id":   in.WorkspaceID,
	})
	if in.Status != store.StatusPending {
		log.WithField("status", in.Status).Info("Interaction already handled, skipping")
		return Outcome{Status: in.Status, Response: in.Response}, nil
	}

	ws, err := p.store.GetWorkspace(ctx, in.WorkspaceID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load workspace: %w", err)
	}
	if !ws.AIActive {
		return p.finish(ctx, in, store.StatusIgnored, PauseSentinel, map[string]any{"reason": "ai_inactive"}, false)
	}

	var customer *store.Customer
	if in.CustomerID != "" {
		customer, err = p.store.GetCustomer(ctx, in.CustomerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Outcome{}, fmt.Errorf("load customer: %w", err)
		}
	}
	if customer != nil && customer.AIPaused {
		log.Info("Human takeover active, leaving interaction for the operator")
		return Outcome{Status: in.Status, Response: TakeoverSentinel}, nil
	}

	if customer != nil {
		reply, handled, err := p.workflow.ProcessStateMachine(ctx, customer.ID, customer.ConversationState, customer.ConversationContext, in.Content)
		switch {
		case err != nil:
			log.WithError(err).Warn("Workflow failed, falling back to generation")
		case handled && strings.TrimSpace(reply) != "":
			out, err := p.finish(ctx, in, store.StatusProcessed, reply,
				map[string]any{"flow": true, "flowState": customer.ConversationState}, false)
			if err == nil {
				p.dispatch(in, reply)
			}
			return out, err
		}
	}

	return p.generate(ctx, in, ws, customer, log)
}

func (p *Processor) generate(ctx context.Context, in *store.Interaction, ws *store.Workspace, customer *store.Customer, log *logging.Entry) (Outcome, error) {
	client, err := p.gateway.Client(ctx, ws.ID, gateway.RoleCustomer)
	if err != nil {
		if !gateway.IsAccessError(err) {
			return Outcome{}, fmt.Errorf("build gateway client: %w", err)
		}
		log.WithError(err).Warn("AI access denied for workspace")
		return p.finish(ctx, in, store.StatusAccessDenied, "", map[string]any{"error": gateway.ErrorCode(err)}, false)
	}

	var res knowledge.Result
	if p.retriever != nil {
		res, err = p.retriever.Retrieve(ctx, client, ws.ID, in.Content)
		if err != nil {
			log.WithError(err).Warn("Knowledge retrieval failed, answering without knowledge")
			res = knowledge.Result{}
		}
	}
	knowledgeText := knowledge.Render(res.Items)

	var history []store.Interaction
	if in.AuthorID != "" {
		history, err = p.store.AuthorHistory(ctx, ws.ID, in.AuthorID, in.ID, in.CreatedAt, HistoryTurns)
		if err != nil {
			log.WithError(err).Warn("Failed to load conversation history")
		}
	}

	var post *store.Post
	if in.PostID != "" {
		post, err = p.store.GetPost(ctx, in.PostID)
		if err != nil {
			log.WithError(err).WithField("post_id", in.PostID).Warn("Failed to load post context")
			post = nil
		}
	}

	pi := promptInput{
		workspace:   ws,
		template:    client.Settings().PromptTemplate,
		knowledge:   knowledgeText,
		postContext: postContext(post),
	}
	if customer != nil && customer.ConversationState == store.StateAwaitingProposalResponse {
		if proposal, ok := customer.ConversationContext["proposal"].(string); ok {
			pi.proposal = proposal
		}
	}

	msgs := make([]llm.Message, 0, 2*len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: buildSystemPrompt(pi)})
	msgs = append(msgs, historyMessages(history)...)
	msgs = append(msgs, llm.Message{Role: "user", Content: userTurn(*in)})

	result, err := client.Chat(ctx, gateway.ChatParams{Messages: msgs, WantConfidence: true},
		gateway.UsageContext{InteractionID: in.ID, Source: "orchestrator"})
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrQuotaUnavailable), ctx.Err() != nil:
			return Outcome{}, fmt.Errorf("chat: %w", err)
		case gateway.IsAccessError(err):
			log.WithError(err).Warn("AI call rejected by workspace policy")
			return p.finish(ctx, in, store.StatusAccessDenied, "", map[string]any{"error": gateway.ErrorCode(err)}, false)
		}
		log.WithError(err).Error("Generation failed, sending apology")
		out, ferr := p.finish(ctx, in, store.StatusProcessed, ApologyReply, map[string]any{
			"error":          "generation_failed",
			"vectorFallback": res.VectorFallback,
		}, false)
		if ferr == nil {
			p.dispatch(in, ApologyReply)
		}
		return out, ferr
	}

	reply := CleanReply(result.Content)
	metadata := map[string]any{
		"confidence":       result.Confidence,
		"vectorFallback":   res.VectorFallback,
		"knowledgeItemIds": res.IDs(),
		"provider":         result.Provider,
		"model":            result.Model,
	}

	status := store.StatusProcessed
	reason := escalationReason(reply, result.Confidence)
	if reason != "" {
		status = store.StatusNeedsReview
		metadata["escalationReason"] = reason
		if err := p.escalate(ctx, in, ws, knowledgeText, result.Confidence, reason); err != nil {
			return Outcome{}, err
		}
		reply = strings.TrimSpace(strings.ReplaceAll(reply, EscalationMarker, ""))
		if reply == "" {
			reply = HoldingReply
		}
	}

	out, err := p.finish(ctx, in, status, reply, metadata, reason != "")
	if err != nil {
		return out, err
	}
	p.dispatch(in, reply)
	return out, nil
}

func escalationReason(reply string, confidence float64) string {
	switch {
	case strings.Contains(reply, EscalationMarker):
		return "marker"
	case confidence < ConfidenceThreshold:
		return "low_confidence"
	default:
		return ""
	}
}

// escalate records the feedback entry and the operator alert, then asks for
// a linking pass. Only the linking trigger is best effort. Both writes are
// keyed by the interaction, so a retry after a failed persist repeats them
// harmlessly.
func (p *Processor) escalate(ctx context.Context, in *store.Interaction, ws *store.Workspace, knowledgeText string, confidence float64, reason string) error {
	escalationsTotal.WithLabelValues(reason).Inc()
	if err := p.store.InsertFeedback(ctx, store.FeedbackEntry{
		WorkspaceID:   ws.ID,
		InteractionID: in.ID,
		Query:         in.Content,
		Context:       knowledgeText,
		Confidence:    confidence,
		Reason:        reason,
	}); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}

	if p.links != nil {
		if err := p.links.Link(ctx, ws.ID); err != nil {
			p.logger.WithError(err).WithField("workspace_id", ws.ID).Warn("Failed to trigger knowledge linking")
		}
	}

	author := in.AuthorName
	if author == "" {
		author = in.AuthorID
	}
	alert := &store.Interaction{
		ID:          alertID(in.ID),
		WorkspaceID: ws.ID,
		CustomerID:  in.CustomerID,
		PostID:      in.PostID,
		AuthorID:    systemAuthor,
		AuthorName:  systemAuthor,
		Origin:      store.OriginAlert,
		Status:      store.StatusActionRequired,
		Content:     fmt.Sprintf("Escalation: customer %s asked \"%s\" (confidence %.2f)", author, in.Content, confidence),
		Metadata:    map[string]any{"escalatedInteractionId": in.ID, "reason": reason},
	}
	if _, err := p.store.CreateInteraction(ctx, alert); err != nil {
		return fmt.Errorf("create escalation alert: %w", err)
	}
	return nil
}

func (p *Processor) finish(ctx context.Context, in *store.Interaction, status, response string, metadata map[string]any, escalated bool) (Outcome, error) {
	if err := p.store.CompleteInteraction(ctx, in.ID, response, status, metadata); err != nil {
		return Outcome{}, fmt.Errorf("persist interaction: %w", err)
	}
	interactionsProcessed.WithLabelValues(status).Inc()
	return Outcome{Status: status, Response: response, Escalated: escalated}, nil
}

// dispatch sends reply in the background. Delivery failures are logged only;
// the persisted interaction stays authoritative.
func (p *Processor) dispatch(in *store.Interaction, reply string) {
	if p.sender == nil || strings.TrimSpace(reply) == "" || in.AuthorID == "" {
		return
	}
	msg := platform.OutboundMessage{
		WorkspaceID:      in.WorkspaceID,
		To:               in.AuthorID,
		Text:             reply,
		ReplyToMessageID: in.PlatformMessageID,
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.dispatchTimeout)
		defer cancel()

		log := p.logger.WithFields(logging.Fields{"interaction_id": in.ID, "workspace_id": in.WorkspaceID})
		err := p.sender.Send(ctx, msg)
		switch {
		case errors.Is(err, platform.ErrRateLimited):
			dispatchTotal.WithLabelValues("rate_limited").Inc()
			log.Warn("Outbound rate limit reached, reply not sent")
		case err != nil:
			dispatchTotal.WithLabelValues("error").Inc()
			log.WithError(err).Error("Failed to dispatch reply")
		default:
			dispatchTotal.WithLabelValues("sent").Inc()
		}
	}()
}
