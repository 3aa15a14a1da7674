package coach

import (
	"context"
	"errors"
	"strings"
	"time"

	"bosun/internal/gateway"
	"bosun/internal/platform"
	"bosun/internal/store"
	"bosun/pkg/llm"
)

var errBoom = errors.New("boom")

type fakeStore struct {
	workspace store.Workspace
	settings  store.AISettings
	patches   []store.WorkspacePatch

	items    []store.Item
	similar  []store.Item
	keyword  []store.Item
	inserted []*store.Item
	updated  []*store.Item
	deleted  []string

	orders      []store.Order
	transitions []store.OrderTransition
	counts      map[string]int

	customers    map[string]*store.Customer
	states       map[string]string
	stateCtx     map[string]map[string]any
	interactions []*store.Interaction
	targets      []store.BroadcastTarget
	contents     []string

	similarErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workspace: store.Workspace{ID: "ws-1", Name: "rosa", BusinessName: "Rosa's Boutique", AIActive: true, Tone: "warm"},
		customers: map[string]*store.Customer{
			"cust-1": {ID: "cust-1", WorkspaceID: "ws-1", PlatformUserID: "ig-maria", Name: "maria"},
		},
		states:   map[string]string{},
		stateCtx: map[string]map[string]any{},
	}
}

func (f *fakeStore) GetWorkspace(context.Context, string) (*store.Workspace, error) {
	ws := f.workspace
	return &ws, nil
}

func (f *fakeStore) GetWorkspaceAISettings(context.Context, string) (*store.AISettings, error) {
	st := f.settings
	return &st, nil
}

func (f *fakeStore) ApplyWorkspacePatch(_ context.Context, _ string, p store.WorkspacePatch) error {
	f.patches = append(f.patches, p)
	return nil
}

func (f *fakeStore) SimilarItems(context.Context, string, []float32, float64, int, []string) ([]store.Item, error) {
	return f.similar, f.similarErr
}

func (f *fakeStore) KeywordItems(context.Context, string, []string, int) ([]store.Item, error) {
	return f.keyword, nil
}

func (f *fakeStore) FindItemByName(_ context.Context, _ string, name string) (*store.Item, error) {
	for _, it := range f.items {
		if strings.EqualFold(it.Name, name) {
			cp := it
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) InsertItem(_ context.Context, it *store.Item) (string, error) {
	it.ID = "item-new"
	f.inserted = append(f.inserted, it)
	return it.ID, nil
}

func (f *fakeStore) UpdateItem(_ context.Context, it *store.Item) error {
	f.updated = append(f.updated, it)
	return nil
}

func (f *fakeStore) DeleteItemByName(_ context.Context, _ string, name string) (int64, error) {
	f.deleted = append(f.deleted, name)
	var n int64
	for _, it := range f.items {
		if strings.EqualFold(it.Name, name) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListItems(context.Context, string, string, int) ([]store.Item, error) {
	return f.items, nil
}

func (f *fakeStore) ListOrders(_ context.Context, _ string, status string, _ int) ([]store.Order, error) {
	var out []store.Order
	for _, o := range f.orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) FindOrderByPrefix(_ context.Context, _ string, prefix, status string) (*store.Order, error) {
	for _, o := range f.orders {
		if strings.HasPrefix(o.ID, prefix) && o.Status == status {
			cp := o
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) TransitionOrder(_ context.Context, _ string, orderID string, t store.OrderTransition) error {
	for i := range f.orders {
		if f.orders[i].ID == orderID && f.orders[i].Status == t.From {
			f.orders[i].Status = t.To
			if t.TotalAmount != nil {
				f.orders[i].TotalAmount = *t.TotalAmount
			}
			f.transitions = append(f.transitions, t)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) OrderCountsSince(context.Context, string, time.Time) (map[string]int, error) {
	return f.counts, nil
}

func (f *fakeStore) GetCustomer(_ context.Context, id string) (*store.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) SetConversationState(_ context.Context, customerID, state string, patch map[string]any) error {
	f.states[customerID] = state
	f.stateCtx[customerID] = patch
	return nil
}

func (f *fakeStore) CreateInteraction(_ context.Context, in *store.Interaction) (string, error) {
	f.interactions = append(f.interactions, in)
	return "sys-" + in.Origin, nil
}

func (f *fakeStore) BroadcastTargets(context.Context, string, string) ([]store.BroadcastTarget, error) {
	return f.targets, nil
}

func (f *fakeStore) InboundContents(context.Context, string, time.Time) ([]string, error) {
	return f.contents, nil
}

type fakeLLM struct {
	result   gateway.ChatResult
	err      error
	vector   []float32
	embedErr error

	calls  []gateway.ChatParams
	embeds int
}

func (f *fakeLLM) Chat(_ context.Context, p gateway.ChatParams, _ gateway.UsageContext) (*gateway.ChatResult, error) {
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	return &res, nil
}

func (f *fakeLLM) Embed(context.Context, string, gateway.UsageContext) (*gateway.EmbedResult, error) {
	f.embeds++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	v := f.vector
	if v == nil {
		v = []float32{0.1, 0.2, 0.3}
	}
	return &gateway.EmbedResult{Vector: v}, nil
}

func (f *fakeLLM) Settings() gateway.EffectiveSettings { return gateway.EffectiveSettings{} }

type fakeSource struct {
	client gateway.LLM
	err    error
	roles  []gateway.Role
}

func (f *fakeSource) Client(_ context.Context, _ string, role gateway.Role) (gateway.LLM, error) {
	f.roles = append(f.roles, role)
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeSender struct {
	sent   []platform.OutboundMessage
	failTo map[string]bool
}

func (f *fakeSender) Send(_ context.Context, msg platform.OutboundMessage) error {
	f.sent = append(f.sent, msg)
	if f.failTo[msg.To] {
		return platform.ErrRateLimited
	}
	return nil
}

type fakeJobs struct {
	enqueued []string
	err      error
}

func (f *fakeJobs) Process(_ context.Context, _, _, interactionID string) error {
	f.enqueued = append(f.enqueued, interactionID)
	return f.err
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type rig struct {
	store  *fakeStore
	llm    *fakeLLM
	source *fakeSource
	sender *fakeSender
	jobs   *fakeJobs
	agent  *Agent
}

func newRig() *rig {
	r := &rig{
		store:  newFakeStore(),
		llm:    &fakeLLM{},
		sender: &fakeSender{failTo: map[string]bool{}},
		jobs:   &fakeJobs{},
	}
	r.source = &fakeSource{client: r.llm}
	r.agent = NewAgent(Config{
		Gateway: r.source,
		Store:   r.store,
		Sender:  r.sender,
		Jobs:    r.jobs,
		Now:     func() time.Time { return fixedNow },
	})
	return r
}

// run executes a single tool through the registry as the agent would.
func (r *rig) run(name, args string) ToolResult {
	tc := ToolContext{WorkspaceID: "ws-1", Client: r.llm, Logger: r.agent.logger.WithField("test", true)}
	return r.agent.runTool(context.Background(), tc, gatewayToolCall(name, args))
}

func gatewayToolCall(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: "call-" + name, Name: name, Arguments: args}
}
