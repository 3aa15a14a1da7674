// Package coach implements the operator-facing assistant: a tool-calling
// agent that manages the knowledge base, workspace configuration and orders.
package coach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bosun/internal/gateway"
	"bosun/internal/platform"
	"bosun/pkg/llm"
	"bosun/pkg/logging"
)

const (
	MaxHistoryTurns = 50
	DoneReply       = "Done. Let me know if there's anything else."
)

// Turn is one prior message of the coach conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ToolResult struct {
	Name   string `json:"name"`
	Output string `json:"output"`
	OK     bool   `json:"ok"`
}

type Reply struct {
	Text        string
	ToolResults []ToolResult
}

// Sender delivers broadcasts; *platform.Outbound implements it.
type Sender interface {
	Send(ctx context.Context, msg platform.OutboundMessage) error
}

// Jobs schedules customer-facing processing; *jobs.Enqueuer implements it.
type Jobs interface {
	Process(ctx context.Context, workspaceID, customerID, interactionID string) error
}

type Config struct {
	Gateway gateway.ClientSource
	Store   Store
	Sender  Sender
	Jobs    Jobs
	Logger  logging.Logger
	// Tools replaces the default tool set when non-nil.
	Tools []Tool
	// Now defaults to time.Now.
	Now func() time.Time
}

type Agent struct {
	gateway  gateway.ClientSource
	store    Store
	registry *Registry
	logger   logging.Logger
	now      func() time.Time
}

func NewAgent(cfg Config) *Agent {
	logger := logging.OrDiscard(cfg.Logger)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tools := cfg.Tools
	if tools == nil {
		tools = defaultTools(toolDeps{
			store:  cfg.Store,
			sender: cfg.Sender,
			jobs:   cfg.Jobs,
			logger: logger,
			now:    cfg.Now,
		})
	}
	return &Agent{
		gateway:  cfg.Gateway,
		store:    cfg.Store,
		registry: NewRegistry(tools),
		logger:   logger,
		now:      cfg.Now,
	}
}

func (a *Agent) Registry() *Registry {
	return a.registry
}

// ProcessCoachMessage runs one operator turn: a single model call followed by
// sequential execution of every requested tool. Gateway failures are
// returned; tool failures become part of the reply.
func (a *Agent) ProcessCoachMessage(ctx context.Context, workspaceID, userMessage string, history []Turn) (Reply, error) {
	client, err := a.gateway.Client(ctx, workspaceID, gateway.RoleCoach)
	if err != nil {
		return Reply{}, fmt.Errorf("coach client: %w", err)
	}
	ws, err := a.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return Reply{}, fmt.Errorf("load workspace: %w", err)
	}
	name := ws.BusinessName
	if name == "" {
		name = ws.Name
	}

	msgs := []llm.Message{{Role: "system", Content: systemPrompt(name, a.now())}}
	msgs = append(msgs, historyMessages(history)...)
	msgs = append(msgs, llm.Message{Role: "user", Content: userMessage})

	result, err := client.Chat(ctx, gateway.ChatParams{Messages: msgs, Tools: a.registry.Catalogue()},
		gateway.UsageContext{Source: "coach"})
	if err != nil {
		return Reply{}, fmt.Errorf("coach chat: %w", err)
	}

	inline, text := llm.ExtractInlineToolCalls(result.Content)
	calls := append(append([]llm.ToolCall{}, result.ToolCalls...), inline...)

	log := a.logger.WithField("workspace_id", workspaceID)
	tc := ToolContext{WorkspaceID: workspaceID, Client: client, Logger: log}

	var reply Reply
	parts := make([]string, 0, len(calls)+1)
	if text = strings.TrimSpace(text); text != "" {
		parts = append(parts, text)
	}
	for _, call := range calls {
		res := a.runTool(ctx, tc, call)
		reply.ToolResults = append(reply.ToolResults, res)
		if res.Output != "" {
			parts = append(parts, res.Output)
		}
	}

	reply.Text = strings.Join(parts, "\n\n")
	if reply.Text == "" {
		reply.Text = DoneReply
	}
	return reply, nil
}

func (a *Agent) runTool(ctx context.Context, tc ToolContext, call llm.ToolCall) ToolResult {
	log := tc.Logger.WithField("tool", call.Name)
	tool, ok := a.registry.Lookup(call.Name)
	if !ok {
		toolCalls.WithLabelValues("unknown", "unknown").Inc()
		log.Warn("Model requested an unknown tool")
		return ToolResult{Name: call.Name, Output: fmt.Sprintf("Unknown tool %q.", call.Name)}
	}

	args, err := a.registry.Decode(tool, call.Arguments)
	if err != nil {
		toolCalls.WithLabelValues(tool.Name, "invalid").Inc()
		log.WithError(err).Info("Rejected tool arguments")
		return ToolResult{Name: tool.Name, Output: fmt.Sprintf("Invalid arguments for %s: %v", tool.Name, err)}
	}

	tc.Logger = log
	out, err := tool.Execute(ctx, tc, args)
	if err != nil {
		toolCalls.WithLabelValues(tool.Name, "error").Inc()
		log.WithError(err).Warn("Tool execution failed")
		return ToolResult{Name: tool.Name, Output: fmt.Sprintf("%s failed: %v", tool.Name, err)}
	}
	toolCalls.WithLabelValues(tool.Name, "ok").Inc()
	return ToolResult{Name: tool.Name, Output: out, OK: true}
}

// historyMessages keeps the last MaxHistoryTurns turns with a known role.
func historyMessages(history []Turn) []llm.Message {
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}
	msgs := make([]llm.Message, 0, len(history))
	for _, t := range history {
		var role string
		switch strings.ToLower(strings.TrimSpace(t.Role)) {
		case "user", "customer":
			role = "user"
		case "assistant", "coach", "model":
			role = "assistant"
		default:
			continue
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	return msgs
}

func systemPrompt(business string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the business coach for %s. The person you are talking to is the owner or a team member, not a customer.\n", business)
	fmt.Fprintf(&b, "Today is %s.\n\n", now.Format("Monday, 2 January 2006"))
	b.WriteString("Use the available tools to manage the knowledge base, the AI configuration and customer orders. ")
	b.WriteString("Call a tool whenever the request needs one; several tools may be called in one turn and run in order. ")
	b.WriteString("Order ids may be given as the first characters of the id. ")
	b.WriteString("Keep your own text short; tool results are shown to the user after it.")
	return b.String()
}
