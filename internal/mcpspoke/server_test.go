package mcpspoke

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"bosun/internal/coach"
	"bosun/internal/gateway"
	"bosun/internal/knowledge"
	"bosun/internal/store"
)

type fakeCoach struct {
	reply     coach.Reply
	err       error
	workspace string
	message   string
}

func (f *fakeCoach) ProcessCoachMessage(_ context.Context, ws, msg string, _ []coach.Turn) (coach.Reply, error) {
	f.workspace, f.message = ws, msg
	return f.reply, f.err
}

type fakeRetriever struct {
	result      knowledge.Result
	err         error
	gotEmbedder bool
	workspace   string
}

func (f *fakeRetriever) Retrieve(_ context.Context, embedder knowledge.Embedder, ws, _ string) (knowledge.Result, error) {
	f.gotEmbedder = embedder != nil
	f.workspace = ws
	return f.result, f.err
}

type fakeLLM struct{}

func (fakeLLM) Chat(context.Context, gateway.ChatParams, gateway.UsageContext) (*gateway.ChatResult, error) {
	return nil, errors.New("not used")
}

func (fakeLLM) Embed(context.Context, string, gateway.UsageContext) (*gateway.EmbedResult, error) {
	return &gateway.EmbedResult{Vector: []float32{1, 0}}, nil
}

func (fakeLLM) Settings() gateway.EffectiveSettings { return gateway.EffectiveSettings{} }

type fakeSource struct {
	err  error
	role gateway.Role
}

func (f *fakeSource) Client(_ context.Context, _ string, role gateway.Role) (gateway.LLM, error) {
	f.role = role
	if f.err != nil {
		return nil, f.err
	}
	return fakeLLM{}, nil
}

func spokeTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	srv := NewServer(cfg)
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return srv },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func spokeClient(t *testing.T, url string) *mcp.ClientSession {
	t.Helper()
	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "1.0.0"}, nil)
	session, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{Endpoint: url}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callTool(t *testing.T, cfg Config, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	session := spokeClient(t, spokeTestServer(t, cfg).URL)
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool %s: %v", name, err)
	}
	return result
}

func extractText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSpoke_ListTools(t *testing.T) {
	session := spokeClient(t, spokeTestServer(t, Config{}).URL)

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	if len(result.Tools) != 2 || !names["ask_coach"] || !names["search_knowledge"] {
		t.Fatalf("unexpected tools: %v", names)
	}
}

func TestSpoke_AskCoach(t *testing.T) {
	fc := &fakeCoach{reply: coach.Reply{
		Text:        "Order #abcd1234 confirmed.",
		ToolResults: []coach.ToolResult{{Name: "confirm_order", Output: "Order #abcd1234 confirmed.", OK: true}},
	}}
	result := callTool(t, Config{Coach: fc}, "ask_coach", map[string]any{
		"workspace_id": "ws-1",
		"message":      " confirm abcd ",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", extractText(result))
	}
	if fc.workspace != "ws-1" || fc.message != "confirm abcd" {
		t.Fatalf("unexpected coach call %q %q", fc.workspace, fc.message)
	}

	var resp askCoachResponse
	if err := json.Unmarshal([]byte(extractText(result)), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Reply != "Order #abcd1234 confirmed." || len(resp.Tools) != 1 || resp.Tools[0].Name != "confirm_order" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSpoke_AskCoach_Errors(t *testing.T) {
	result := callTool(t, Config{Coach: &fakeCoach{err: gateway.ErrWorkspaceSuspended}}, "ask_coach", map[string]any{
		"workspace_id": "ws-1",
		"message":      "hi",
	})
	if !result.IsError || !strings.Contains(extractText(result), "workspace suspended") {
		t.Fatalf("expected coach error, got %q", extractText(result))
	}

	result = callTool(t, Config{Coach: &fakeCoach{}}, "ask_coach", map[string]any{
		"workspace_id": "ws-1",
		"message":      "   ",
	})
	if !result.IsError || extractText(result) != "message is required" {
		t.Fatalf("expected blank message error, got %q", extractText(result))
	}

	result = callTool(t, Config{}, "ask_coach", map[string]any{
		"workspace_id": "ws-1",
		"message":      "hi",
	})
	if !result.IsError || extractText(result) != "coach unavailable" {
		t.Fatalf("expected unavailable, got %q", extractText(result))
	}
}

func TestSpoke_AskCoach_MissingWorkspace(t *testing.T) {
	session := spokeClient(t, spokeTestServer(t, Config{Coach: &fakeCoach{}}).URL)

	// Required fields are validated by the SDK before the handler runs.
	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "ask_coach",
		Arguments: map[string]any{"message": "hi"},
	})
	if err == nil {
		t.Fatal("expected error for missing workspace_id")
	}
}

func TestSpoke_SearchKnowledge(t *testing.T) {
	fr := &fakeRetriever{result: knowledge.Result{Items: []store.Item{
		{ID: "it-1", Name: "Opening hours", Content: "Mon-Fri 9-17"},
		{ID: "it-2", Name: "Delivery", Content: "Free over 50"},
	}}}
	src := &fakeSource{}
	result := callTool(t, Config{Retriever: fr, Gateway: src}, "search_knowledge", map[string]any{
		"workspace_id": "ws-1",
		"query":        "when are you open",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", extractText(result))
	}
	if !fr.gotEmbedder || src.role != gateway.RoleCustomer || fr.workspace != "ws-1" {
		t.Fatalf("expected customer-role embedder, got embedder=%v role=%q", fr.gotEmbedder, src.role)
	}

	var resp searchKnowledgeResponse
	if err := json.Unmarshal([]byte(extractText(result)), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	want := "- **Opening hours**: Mon-Fri 9-17\n- **Delivery**: Free over 50"
	if resp.Knowledge != want {
		t.Fatalf("unexpected knowledge:\n%s", resp.Knowledge)
	}
	if len(resp.ItemIDs) != 2 || resp.ItemIDs[0] != "it-1" || resp.VectorFallback {
		t.Fatalf("unexpected ids %+v", resp)
	}
}

func TestSpoke_SearchKnowledge_NoClientUsesKeywordPath(t *testing.T) {
	fr := &fakeRetriever{result: knowledge.Result{VectorFallback: true}}
	result := callTool(t, Config{Retriever: fr, Gateway: &fakeSource{err: gateway.ErrAccessDenied}}, "search_knowledge", map[string]any{
		"workspace_id": "ws-1",
		"query":        "prices",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", extractText(result))
	}
	if fr.gotEmbedder {
		t.Fatal("retriever should get a nil embedder")
	}
	var resp searchKnowledgeResponse
	if err := json.Unmarshal([]byte(extractText(result)), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Knowledge != knowledge.EmptyKnowledge || !resp.VectorFallback {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSpoke_SearchKnowledge_RetrieverError(t *testing.T) {
	fr := &fakeRetriever{err: errors.New("db down")}
	result := callTool(t, Config{Retriever: fr}, "search_knowledge", map[string]any{
		"workspace_id": "ws-1",
		"query":        "prices",
	})
	if !result.IsError || !strings.Contains(extractText(result), "db down") {
		t.Fatalf("expected error result, got %q", extractText(result))
	}
}
