package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bosun/internal/gateway"
	"bosun/internal/platform"
	"bosun/internal/store"
)

type completion struct {
	id       string
	response string
	status   string
	metadata map[string]any
}

type fakeStore struct {
	interactions map[string]*store.Interaction
	workspace    *store.Workspace
	customers    map[string]*store.Customer
	posts        map[string]*store.Post
	history      []store.Interaction

	completions []completion
	created     []*store.Interaction
	feedback    []store.FeedbackEntry

	// completeErrs are returned, in order, by the next CompleteInteraction calls.
	completeErrs []error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		interactions: map[string]*store.Interaction{},
		customers:    map[string]*store.Customer{},
		posts:        map[string]*store.Post{},
		workspace: &store.Workspace{
			ID: "ws-1", Name: "Boutique", BusinessName: "Rosa's Boutique", Status: store.WorkspaceActive,
			AIActive: true, AllowGlobalAI: true,
		},
	}
}

func (f *fakeStore) addInteraction(in *store.Interaction) {
	if in.Status == "" {
		in.Status = store.StatusPending
	}
	if in.WorkspaceID == "" {
		in.WorkspaceID = f.workspace.ID
	}
	f.interactions[in.ID] = in
}

func (f *fakeStore) GetInteraction(_ context.Context, id string) (*store.Interaction, error) {
	in, ok := f.interactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (f *fakeStore) GetWorkspace(context.Context, string) (*store.Workspace, error) {
	ws := *f.workspace
	return &ws, nil
}

func (f *fakeStore) GetCustomer(_ context.Context, id string) (*store.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) GetPost(_ context.Context, id string) (*store.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) AuthorHistory(context.Context, string, string, string, time.Time, int) ([]store.Interaction, error) {
	return f.history, nil
}

func (f *fakeStore) CompleteInteraction(_ context.Context, id, response, status string, metadata map[string]any) error {
	if len(f.completeErrs) > 0 {
		err := f.completeErrs[0]
		f.completeErrs = f.completeErrs[1:]
		return err
	}
	f.completions = append(f.completions, completion{id: id, response: response, status: status, metadata: metadata})
	return nil
}

// CreateInteraction and InsertFeedback ignore duplicates the way the SQL
// store's ON CONFLICT clauses do.
func (f *fakeStore) CreateInteraction(_ context.Context, in *store.Interaction) (string, error) {
	if in.ID == "" {
		in.ID = fmt.Sprintf("created-%d", len(f.created)+1)
	}
	for _, c := range f.created {
		if c.ID == in.ID {
			return in.ID, nil
		}
	}
	f.created = append(f.created, in)
	return in.ID, nil
}

func (f *fakeStore) InsertFeedback(_ context.Context, e store.FeedbackEntry) error {
	for _, fb := range f.feedback {
		if fb.InteractionID == e.InteractionID {
			return nil
		}
	}
	f.feedback = append(f.feedback, e)
	return nil
}

type fakeLLM struct {
	result   *gateway.ChatResult
	err      error
	embedErr error
	settings gateway.EffectiveSettings

	chatCalls int
	messages  []gatewayCall
}

type gatewayCall struct {
	params gateway.ChatParams
	usage  gateway.UsageContext
}

func (f *fakeLLM) Chat(_ context.Context, params gateway.ChatParams, uc gateway.UsageContext) (*gateway.ChatResult, error) {
	f.chatCalls++
	f.messages = append(f.messages, gatewayCall{params: params, usage: uc})
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	return &res, nil
}

func (f *fakeLLM) Embed(context.Context, string, gateway.UsageContext) (*gateway.EmbedResult, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return &gateway.EmbedResult{Vector: []float32{1, 0}}, nil
}

func (f *fakeLLM) Settings() gateway.EffectiveSettings { return f.settings }

type fakeSource struct {
	client gateway.LLM
	err    error
	calls  int
}

func (f *fakeSource) Client(context.Context, string, gateway.Role) (gateway.LLM, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []platform.OutboundMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg platform.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeWorkflow struct {
	reply   string
	handled bool
	err     error
	calls   int
	state   string
}

func (f *fakeWorkflow) ProcessStateMachine(_ context.Context, _ string, state string, _ map[string]any, _ string) (string, bool, error) {
	f.calls++
	f.state = state
	return f.reply, f.handled, f.err
}

type fakeLinks struct {
	calls int
	err   error
}

func (f *fakeLinks) Link(context.Context, string) error {
	f.calls++
	return f.err
}
