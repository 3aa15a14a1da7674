package ingest

import (
	"context"
	"errors"

	"bosun/internal/gateway"
	"bosun/internal/store"
)

var errBoom = errors.New("boom")

type fakeLLM struct {
	// reply maps the chat request to model output.
	reply    func(user string) (string, error)
	embedErr error

	chats  []string
	embeds int
}

func (f *fakeLLM) Chat(_ context.Context, p gateway.ChatParams, _ gateway.UsageContext) (*gateway.ChatResult, error) {
	user := p.Messages[len(p.Messages)-1].Content
	f.chats = append(f.chats, user)
	out, err := f.reply(user)
	if err != nil {
		return nil, err
	}
	return &gateway.ChatResult{Content: out}, nil
}

func (f *fakeLLM) Embed(context.Context, string, gateway.UsageContext) (*gateway.EmbedResult, error) {
	f.embeds++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return &gateway.EmbedResult{Vector: []float32{0.5, 0.5}}, nil
}

func (f *fakeLLM) Settings() gateway.EffectiveSettings { return gateway.EffectiveSettings{} }

type fakeSource struct {
	client gateway.LLM
	err    error
}

func (f *fakeSource) Client(context.Context, string, gateway.Role) (gateway.LLM, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeLinks struct {
	workspaces []string
}

func (f *fakeLinks) Link(_ context.Context, ws string) error {
	f.workspaces = append(f.workspaces, ws)
	return nil
}

type verification struct {
	related   []string
	embedding []float32
}

type fakeStore struct {
	posts    map[string]*store.Post
	inserted []*store.Item
	insertFn func(*store.Item) error

	items    []store.Item
	verified []store.Item
	peers    map[string][]store.Item
	marks    map[string]verification
	markErr  map[string]error
	excluded [][]string
	batches  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:   map[string]*store.Post{},
		peers:   map[string][]store.Item{},
		marks:   map[string]verification{},
		markErr: map[string]error{},
	}
}

func (f *fakeStore) GetPost(_ context.Context, id string) (*store.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) InsertItem(_ context.Context, it *store.Item) (string, error) {
	if f.insertFn != nil {
		if err := f.insertFn(it); err != nil {
			return "", err
		}
	}
	f.inserted = append(f.inserted, it)
	return "new", nil
}

func (f *fakeStore) UnverifiedItems(_ context.Context, _ string, limit int) ([]store.Item, error) {
	f.batches++
	var out []store.Item
	for _, it := range f.items {
		if _, done := f.marks[it.ID]; done {
			continue
		}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) RecentVerifiedItems(context.Context, string, int) ([]store.Item, error) {
	return f.verified, nil
}

func (f *fakeStore) SimilarItems(_ context.Context, _ string, _ []float32, _ float64, _ int, exclude []string) ([]store.Item, error) {
	f.excluded = append(f.excluded, exclude)
	return f.peers[currentItem(exclude)], nil
}

// currentItem keys peer lookups by the first excluded id; tests use
// single-item batches when they need per-item peers.
func currentItem(exclude []string) string {
	if len(exclude) == 0 {
		return ""
	}
	return exclude[0]
}

func (f *fakeStore) MarkVerified(_ context.Context, id string, related []string, embedding []float32) error {
	if err := f.markErr[id]; err != nil {
		return err
	}
	f.marks[id] = verification{related: related, embedding: embedding}
	return nil
}
