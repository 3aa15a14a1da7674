package orchestrator

import (
	"fmt"
	"strings"

	"bosun/internal/store"
	"bosun/pkg/llm"
)

const (
	EscalationMarker = "[ESCALATE]"

	flowPrefix      = "[Automated flow] "
	alertPrefix     = "[Internal alert] "
	systemPrefix    = "[System notice] "
	broadcastPrefix = "[Broadcast] "

	directMessageContext = "Direct message"
	defaultTone          = "friendly, concise and helpful"
)

// promptInput is everything a system prompt can draw on.
type promptInput struct {
	workspace   *store.Workspace
	template    string
	knowledge   string
	postContext string
	proposal    string
}

// buildSystemPrompt fills the workspace template when one is set, otherwise
// the default prompt.
func buildSystemPrompt(in promptInput) string {
	ws := in.workspace
	if strings.TrimSpace(in.template) != "" {
		r := strings.NewReplacer(
			"{{businessName}}", ws.BusinessName,
			"{{businessDescription}}", ws.BusinessDescription,
			"{{businessHours}}", ws.BusinessHours,
			"{{location}}", ws.Location,
			"{{tone}}", ws.Tone,
			"{{knowledge}}", in.knowledge,
			"{{postContext}}", in.postContext,
		)
		return r.Replace(in.template)
	}

	name := ws.BusinessName
	if name == "" {
		name = ws.Name
	}
	tone := ws.Tone
	if tone == "" {
		tone = defaultTone
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the customer assistant for %s, replying to customers on social media.\n", name)
	if ws.BusinessDescription != "" {
		fmt.Fprintf(&b, "About the business: %s\n", ws.BusinessDescription)
	}
	if ws.BusinessHours != "" {
		fmt.Fprintf(&b, "Business hours: %s\n", ws.BusinessHours)
	}
	if ws.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", ws.Location)
	}
	fmt.Fprintf(&b, "Tone: %s\n", tone)

	b.WriteString("\n## Knowledge base\n")
	b.WriteString(in.knowledge)
	b.WriteString("\n\n## Post context\n")
	b.WriteString(in.postContext)
	if in.proposal != "" {
		b.WriteString("\n\n## Pending proposal\n")
		b.WriteString("The seller proposed a change to this customer's order and is waiting for their answer: ")
		b.WriteString(in.proposal)
	}

	b.WriteString("\n\n## Rules\n")
	b.WriteString("- Answer only from the knowledge base and business details above. Never invent prices, stock or policies.\n")
	b.WriteString("- Keep replies short enough for a social media message.\n")
	fmt.Fprintf(&b, "- If you cannot answer from the information above, or the customer needs a person "+
		"(complaints, refunds, custom requests), write %s in your reply.", EscalationMarker)
	return b.String()
}

// userTurn is the user-role text for an interaction. Only customer messages
// go in unlabelled.
func userTurn(in store.Interaction) string {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return ""
	}
	switch in.Origin {
	case store.OriginFlow:
		return flowPrefix + content
	case store.OriginAlert:
		return alertPrefix + content
	case store.OriginSystem:
		return systemPrefix + content
	case store.OriginBroadcast:
		return broadcastPrefix + content
	}
	return content
}

// flowHandled reports whether a scripted workflow, not the model, wrote the
// interaction's response.
func flowHandled(in store.Interaction) bool {
	flow, _ := in.Metadata["flow"].(bool)
	return flow || in.Origin == store.OriginFlow
}

// historyMessages turns prior interactions, oldest first, into chat turns.
func historyMessages(history []store.Interaction) []llm.Message {
	msgs := make([]llm.Message, 0, 2*len(history))
	for _, h := range history {
		if content := userTurn(h); content != "" {
			msgs = append(msgs, llm.Message{Role: "user", Content: content})
		}
		resp := strings.TrimSpace(h.Response)
		if resp == "" {
			continue
		}
		if flowHandled(h) && h.Origin != store.OriginFlow {
			resp = flowPrefix + resp
		}
		msgs = append(msgs, llm.Message{Role: "assistant", Content: resp})
	}
	return msgs
}

func postContext(post *store.Post) string {
	if post == nil {
		return directMessageContext
	}
	caption := strings.TrimSpace(post.Caption)
	if caption == "" {
		caption = strings.TrimSpace(post.Content)
	}
	if caption == "" {
		return "Comment on a post without a caption"
	}
	return fmt.Sprintf("Comment on a post with caption: %q", caption)
}
