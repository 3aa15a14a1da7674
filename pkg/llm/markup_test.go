package llm

import "testing"

func TestExtractInlineToolCalls(t *testing.T) {
	text := "Sure, adding it now.\n" +
		`<function=list_items>{"limit": 5}</function>` + "\n" +
		`<tool_call>{"name": "create_item", "arguments": {"name": "Hat", "content": "Wool hat", "category": "product"}}</tool_call>` +
		"\nDone."

	calls, cleaned := ExtractInlineToolCalls(text)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "list_items" || calls[0].Arguments != `{"limit": 5}` {
		t.Fatalf("unexpected first call %+v", calls[0])
	}
	if calls[1].Name != "create_item" || calls[1].Index != 1 || calls[1].ID == "" {
		t.Fatalf("unexpected second call %+v", calls[1])
	}
	if cleaned != "Sure, adding it now.\n\nDone." {
		t.Fatalf("unexpected cleaned text %q", cleaned)
	}
}

func TestExtractInlineToolCallsStringArguments(t *testing.T) {
	calls, _ := ExtractInlineToolCalls(`<tool_call>{"name":"list_orders","arguments":"{\"status\":\"pending\"}"}</tool_call>`)
	if len(calls) != 1 || calls[0].Arguments != `{"status":"pending"}` {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestExtractInlineToolCallsBadJSON(t *testing.T) {
	calls, cleaned := ExtractInlineToolCalls("hi <tool_call>{not json</tool_call>")
	if len(calls) != 0 {
		t.Fatalf("expected no calls, got %+v", calls)
	}
	if cleaned != "hi" {
		t.Fatalf("markup not stripped: %q", cleaned)
	}
}

func TestExtractInlineToolCallsEmptyArguments(t *testing.T) {
	calls, _ := ExtractInlineToolCalls(`<function=view_analytics></function>`)
	if len(calls) != 1 || calls[0].Arguments != "{}" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}
