// Package mcpspoke exposes the coach and knowledge retrieval as MCP tools.
package mcpspoke

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"bosun/internal/coach"
	"bosun/internal/gateway"
	"bosun/internal/knowledge"
	"bosun/pkg/logging"
	"bosun/pkg/version"
)

// Coach is satisfied by *coach.Agent.
type Coach interface {
	ProcessCoachMessage(ctx context.Context, workspaceID, message string, history []coach.Turn) (coach.Reply, error)
}

// Retriever is satisfied by *knowledge.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, embedder knowledge.Embedder, workspaceID, query string) (knowledge.Result, error)
}

type Config struct {
	Coach     Coach
	Retriever Retriever
	Gateway   gateway.ClientSource
	Logger    logging.Logger
}

// NewServer builds the MCP server with ask_coach and search_knowledge.
func NewServer(cfg Config) *mcp.Server {
	cfg.Logger = logging.OrDiscard(cfg.Logger)

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "bosun",
		Version: version.Version,
	}, nil)

	registerAskCoach(srv, cfg)
	registerSearchKnowledge(srv, cfg)
	return srv
}

// --- ask_coach ---

type askCoachInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"required" jsonschema_description:"Workspace the coach acts on"`
	Message     string `json:"message" jsonschema:"required" jsonschema_description:"Instruction or question for the business coach"`
}

type askCoachResponse struct {
	Reply string             `json:"reply"`
	Tools []coach.ToolResult `json:"tools"`
}

func registerAskCoach(srv *mcp.Server, cfg Config) {
	mcp.AddTool(srv,
		&mcp.Tool{
			Name:        "ask_coach",
			Description: "Send a message to the business coach. The coach can manage knowledge items, orders, settings and broadcasts for the workspace.",
		},
		func(ctx context.Context, _ *mcp.CallToolRequest, args askCoachInput) (*mcp.CallToolResult, any, error) {
			return handleAskCoach(ctx, args, cfg)
		},
	)
}

func handleAskCoach(ctx context.Context, args askCoachInput, cfg Config) (*mcp.CallToolResult, any, error) {
	if cfg.Coach == nil {
		return spokeError("coach unavailable")
	}
	workspaceID := strings.TrimSpace(args.WorkspaceID)
	if workspaceID == "" {
		return spokeError("workspace_id is required")
	}
	message := strings.TrimSpace(args.Message)
	if message == "" {
		return spokeError("message is required")
	}

	reply, err := cfg.Coach.ProcessCoachMessage(ctx, workspaceID, message, nil)
	if err != nil {
		cfg.Logger.WithError(err).WithField("workspace_id", workspaceID).Warn("ask_coach failed")
		return spokeError(fmt.Sprintf("coach error: %v", err))
	}
	tools := reply.ToolResults
	if tools == nil {
		tools = []coach.ToolResult{}
	}
	spokeCallsTotal.WithLabelValues("ask_coach").Inc()
	return spokeSuccess(askCoachResponse{Reply: reply.Text, Tools: tools})
}

// --- search_knowledge ---

type searchKnowledgeInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"required" jsonschema_description:"Workspace whose knowledge base is searched"`
	Query       string `json:"query" jsonschema:"required" jsonschema_description:"Customer-style question to retrieve knowledge for"`
}

type searchKnowledgeResponse struct {
	Query          string   `json:"query"`
	Knowledge      string   `json:"knowledge"`
	ItemIDs        []string `json:"item_ids"`
	VectorFallback bool     `json:"vector_fallback,omitempty"`
}

func registerSearchKnowledge(srv *mcp.Server, cfg Config) {
	mcp.AddTool(srv,
		&mcp.Tool{
			Name:        "search_knowledge",
			Description: "Retrieve the knowledge a customer reply would see for a question, rendered the way it appears in the prompt.",
		},
		func(ctx context.Context, _ *mcp.CallToolRequest, args searchKnowledgeInput) (*mcp.CallToolResult, any, error) {
			return handleSearchKnowledge(ctx, args, cfg)
		},
	)
}

func handleSearchKnowledge(ctx context.Context, args searchKnowledgeInput, cfg Config) (*mcp.CallToolResult, any, error) {
	if cfg.Retriever == nil {
		return spokeError("knowledge search unavailable")
	}
	workspaceID := strings.TrimSpace(args.WorkspaceID)
	if workspaceID == "" {
		return spokeError("workspace_id is required")
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return spokeError("query is required")
	}

	// Without a usable client the retriever runs its keyword path.
	var embedder knowledge.Embedder
	if cfg.Gateway != nil {
		client, err := cfg.Gateway.Client(ctx, workspaceID, gateway.RoleCustomer)
		if err != nil {
			cfg.Logger.WithError(err).WithField("workspace_id", workspaceID).Warn("search_knowledge: no ai client, using keyword search")
		} else {
			embedder = client
		}
	}

	res, err := cfg.Retriever.Retrieve(ctx, embedder, workspaceID, query)
	if err != nil {
		cfg.Logger.WithError(err).WithField("workspace_id", workspaceID).Warn("search_knowledge failed")
		return spokeError(fmt.Sprintf("knowledge search failed: %v", err))
	}
	spokeCallsTotal.WithLabelValues("search_knowledge").Inc()
	spokeResultsCount.Observe(float64(len(res.Items)))

	return spokeSuccess(searchKnowledgeResponse{
		Query:          query,
		Knowledge:      knowledge.Render(res.Items),
		ItemIDs:        res.IDs(),
		VectorFallback: res.VectorFallback,
	})
}

// --- helpers ---

func spokeError(message string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}, nil, nil
}

func spokeSuccess(result any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return spokeError(fmt.Sprintf("failed to format result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, result, nil
}
