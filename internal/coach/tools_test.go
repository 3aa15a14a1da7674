package coach

import (
	"errors"
	"strings"
	"testing"
	"time"

	"bosun/internal/store"
)

func TestCreateItemInsertsWithExpiry(t *testing.T) {
	r := newRig()
	res := r.run("create_item", `{"name":"Spring sale","content":"20% off all scarves","category":"promotion","expires_in":"2w"}`)
	if !res.OK {
		t.Fatalf("unexpected failure %q", res.Output)
	}
	if len(r.store.inserted) != 1 {
		t.Fatalf("expected insert, got %d", len(r.store.inserted))
	}
	it := r.store.inserted[0]
	if it.Embedding == nil || it.WorkspaceID != "ws-1" {
		t.Fatalf("unexpected item %+v", it)
	}
	if it.ExpiresAt == nil || !it.ExpiresAt.Equal(fixedNow.Add(14*24*time.Hour)) {
		t.Fatalf("unexpected expiry %v", it.ExpiresAt)
	}
	if !strings.Contains(res.Output, "expires on 2026-03-24") {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestCreateItemUpdatesSimilarPeer(t *testing.T) {
	r := newRig()
	r.store.similar = []store.Item{{ID: "peer", Name: "Opening hours", Content: "9-5", Similarity: 0.91}}

	res := r.run("create_item", `{"name":"Store hours","content":"Open 9 to 6","category":"faq"}`)
	if len(r.store.inserted) != 0 || len(r.store.updated) != 1 {
		t.Fatalf("expected in-place update, inserted=%d updated=%d", len(r.store.inserted), len(r.store.updated))
	}
	up := r.store.updated[0]
	if up.ID != "peer" || up.Content != "Open 9 to 6" || up.Name != "Store hours" {
		t.Fatalf("unexpected update %+v", up)
	}
	if !strings.Contains(res.Output, `"Opening hours"`) {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestCreateItemFallsBackToNameWhenEmbeddingFails(t *testing.T) {
	r := newRig()
	r.llm.embedErr = errBoom
	r.store.items = []store.Item{{ID: "old", Name: "Returns", Content: "14 days"}}

	res := r.run("create_item", `{"name":"returns","content":"30 days","category":"policy"}`)
	if !res.OK || len(r.store.updated) != 1 {
		t.Fatalf("expected name match update, got %+v", res)
	}
	if r.store.updated[0].ID != "old" || r.store.updated[0].Embedding != nil {
		t.Fatalf("unexpected update %+v", r.store.updated[0])
	}
}

func TestCreateItemRejectsBadExpiry(t *testing.T) {
	r := newRig()
	res := r.run("create_item", `{"name":"x","content":"y","category":"faq","expires_in":"soon"}`)
	if res.OK || !strings.HasPrefix(res.Output, "create_item failed:") {
		t.Fatalf("expected failure, got %+v", res)
	}
	if len(r.store.inserted) != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestSearchItemsRanksHybrid(t *testing.T) {
	r := newRig()
	r.store.similar = []store.Item{
		{ID: "a", Name: "Linen shirt", Content: "breathable", Similarity: 0.55, UpdatedAt: fixedNow},
		{ID: "b", Name: "Silk dress", Content: "red silk evening dress", Similarity: 0.6, UpdatedAt: fixedNow},
	}
	r.store.keyword = []store.Item{
		{ID: "b", Name: "Silk dress", Content: "red silk evening dress", UpdatedAt: fixedNow},
		{ID: "c", Name: "Evening dress care", Content: "dry clean only", UpdatedAt: fixedNow.Add(-90 * 24 * time.Hour)},
	}

	res := r.run("search_items", `{"query":"silk evening dress","limit":2}`)
	if !res.OK {
		t.Fatalf("unexpected failure %q", res.Output)
	}
	lines := strings.Split(res.Output, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 results, got %q", res.Output)
	}
	if !strings.HasPrefix(lines[1], "1. Silk dress") {
		t.Fatalf("expected silk dress first, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "2. Linen shirt") {
		t.Fatalf("expected similarity to outrank keyword-only match, got %q", lines[2])
	}
}

func TestDeleteItem(t *testing.T) {
	r := newRig()
	if res := r.run("delete_item", `{"name":"ghost"}`); res.Output != `No item named "ghost" found.` {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestUpdateConfigReportsChangedFields(t *testing.T) {
	r := newRig()
	temp := 0.7
	r.store.settings.Temperature = &temp

	res := r.run("update_config", `{"tone":"warm","businessHours":"9-18","temperature":0.7,"aiActive":false}`)
	if res.Output != "Updated businessHours, aiActive." {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if len(r.store.patches) != 1 {
		t.Fatalf("expected one patch")
	}
	p := r.store.patches[0]
	if p.Tone != nil || p.Temperature != nil || p.BusinessHours == nil || *p.BusinessHours != "9-18" || p.AIActive == nil || *p.AIActive {
		t.Fatalf("unexpected patch %+v", p)
	}
}

func TestUpdateConfigNoChanges(t *testing.T) {
	r := newRig()
	res := r.run("update_config", `{"tone":"warm","aiActive":true}`)
	if res.Output != noConfigChanges || len(r.store.patches) != 0 {
		t.Fatalf("unexpected result %q patches=%d", res.Output, len(r.store.patches))
	}
}

func TestUpdateConfigValidation(t *testing.T) {
	r := newRig()
	res := r.run("update_config", `{"temperature":3}`)
	if res.Output != "Invalid arguments for update_config: temperature: lte=2" {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func orderRig() *rig {
	r := newRig()
	r.store.orders = []store.Order{
		{ID: "abcd1234-0000", WorkspaceID: "ws-1", CustomerID: "cust-1", ItemName: "Red Dress", Quantity: 2, TotalAmount: 98, Status: store.OrderPending, CreatedAt: fixedNow},
		{ID: "ffff9999-0000", WorkspaceID: "ws-1", CustomerID: "cust-1", ItemName: "Scarf", Quantity: 1, TotalAmount: 50, Status: store.OrderNegotiating, CreatedAt: fixedNow},
	}
	return r
}

func TestConfirmOrderNotifiesCustomer(t *testing.T) {
	r := orderRig()
	res := r.run("confirm_order", `{"order_id":"abcd","note":"Ships Monday"}`)
	if res.Output != "Order #abcd1234 confirmed." {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if r.store.orders[0].Status != store.OrderConfirmed {
		t.Fatalf("order not confirmed")
	}
	if len(r.store.interactions) != 1 {
		t.Fatalf("expected one notification interaction")
	}
	in := r.store.interactions[0]
	if in.Origin != store.OriginSystem || in.Status != store.StatusPending || in.AuthorID != "ig-maria" {
		t.Fatalf("unexpected interaction %+v", in)
	}
	if !strings.Contains(in.Content, "confirmed") || !strings.Contains(in.Content, "Ships Monday") {
		t.Fatalf("unexpected notice %q", in.Content)
	}
	if len(r.jobs.enqueued) != 1 || r.jobs.enqueued[0] != "sys-system" {
		t.Fatalf("expected process job, got %v", r.jobs.enqueued)
	}
}

func TestConfirmOrderWrongStatusIsNotFound(t *testing.T) {
	r := orderRig()
	res := r.run("confirm_order", `{"order_id":"ffff9999"}`)
	if res.Output != `No pending order found matching "ffff9999".` {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if len(r.store.transitions) != 0 || len(r.store.interactions) != 0 || len(r.jobs.enqueued) != 0 {
		t.Fatalf("lookup miss must not mutate")
	}
}

func TestRejectOrderEnqueueFailureIsLogged(t *testing.T) {
	r := orderRig()
	r.jobs.err = errBoom
	res := r.run("reject_order", `{"order_id":"#abcd1234","reason":"Sold out"}`)
	if !res.OK || res.Output != "Order #abcd1234 rejected." {
		t.Fatalf("unexpected result %+v", res)
	}
	if r.store.orders[0].Status != store.OrderRejected {
		t.Fatalf("order not rejected")
	}
}

func TestProposeChangeSetsCustomerState(t *testing.T) {
	r := orderRig()
	res := r.run("propose_change", `{"order_id":"abcd","proposal":"blue instead of red"}`)
	if !res.OK {
		t.Fatalf("unexpected failure %q", res.Output)
	}
	if r.store.orders[0].Status != store.OrderNegotiating {
		t.Fatalf("order not negotiating")
	}
	if p := r.store.transitions[0].SellerProposal; p == nil || *p != "blue instead of red" {
		t.Fatalf("proposal not stored")
	}
	if r.store.states["cust-1"] != store.StateAwaitingProposalResponse {
		t.Fatalf("customer state not updated: %v", r.store.states)
	}
	if r.store.stateCtx["cust-1"]["proposal"] != "blue instead of red" {
		t.Fatalf("proposal missing from context %v", r.store.stateCtx["cust-1"])
	}
}

func TestGrantDiscount(t *testing.T) {
	r := orderRig()
	res := r.run("grant_discount", `{"order_id":"ffff","discount_percent":15}`)
	if res.Output != "Order #ffff9999 confirmed with a 15% discount. New total: 42.50." {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if r.store.orders[1].Status != store.OrderConfirmed || r.store.orders[1].TotalAmount != 42.5 {
		t.Fatalf("unexpected order %+v", r.store.orders[1])
	}
	if r.store.states["cust-1"] != store.StateIdle {
		t.Fatalf("customer should return to idle")
	}
	if res := r.run("grant_discount", `{"order_id":"abcd","discount_percent":10}`); res.Output != `No negotiating order found matching "abcd".` {
		t.Fatalf("pending order must not be discounted: %q", res.Output)
	}
}

func TestListOrders(t *testing.T) {
	r := orderRig()
	res := r.run("list_orders", `{"status":"pending"}`)
	if res.Output != "1 order(s):\n- #abcd1234 2x Red Dress, 98.00 (pending, 2026-03-10)" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if res := r.run("list_orders", `{"status":"lost"}`); res.OK {
		t.Fatalf("unknown status must be rejected")
	}
}

func TestBroadcastTalliesAttempts(t *testing.T) {
	r := newRig()
	r.store.targets = []store.BroadcastTarget{
		{CustomerID: "cust-1", AuthorID: "ig-maria", AuthorName: "maria"},
		{CustomerID: "cust-2", AuthorID: "ig-joao", AuthorName: "joao"},
		{AuthorID: "ig-ana", AuthorName: "ana"},
	}
	r.sender.failTo["ig-joao"] = true

	res := r.run("broadcast_message", `{"keyword":"linen","message":"Linen is back in stock!"}`)
	if res.Output != `Broadcast to customers who mentioned "linen": 2 sent, 1 failed.` {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if len(r.sender.sent) != 3 || len(r.store.interactions) != 3 {
		t.Fatalf("expected 3 attempts and 3 logs, got %d/%d", len(r.sender.sent), len(r.store.interactions))
	}
	for _, in := range r.store.interactions {
		if in.Origin != store.OriginBroadcast {
			t.Fatalf("unexpected origin %q", in.Origin)
		}
	}
	if r.store.interactions[1].Status != store.StatusFailed {
		t.Fatalf("failed send should be logged as failed")
	}
}

func TestBroadcastNoTargets(t *testing.T) {
	r := newRig()
	res := r.run("broadcast_message", `{"keyword":"linen","message":"hi"}`)
	if res.Output != `No customers found who mentioned "linen".` || len(r.sender.sent) != 0 {
		t.Fatalf("unexpected result %q", res.Output)
	}
}

func TestViewAnalytics(t *testing.T) {
	r := newRig()
	r.store.counts = map[string]int{store.OrderPending: 2, store.OrderConfirmed: 3}
	r.store.contents = []string{
		"Do you have the red dress?",
		"do you HAVE it in blue",
		"Do you have... size M",
		"What are your hours?",
		"what are your prices",
		"hello",
	}
	res := r.run("view_analytics", `{"timeframe":"7d"}`)
	want := "Analytics for the last 7d:\n" +
		"Orders: 5 (2 pending, 3 confirmed)\n" +
		"Customer messages: 6\n" +
		"Top recurring questions:\n" +
		"1. \"do you have\" (3)\n" +
		"2. \"what are your\" (2)"
	if res.Output != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", res.Output, want)
	}
	if res := r.run("view_analytics", `{"timeframe":"1y"}`); res.OK {
		t.Fatalf("unsupported timeframe must be rejected")
	}
}

func TestRecurringIntentsLimit(t *testing.T) {
	var contents []string
	for _, p := range []string{"a b c", "d e f", "g h i", "j k l", "m n o", "p q r"} {
		contents = append(contents, p, p)
	}
	if got := RecurringIntents(contents, TopIntents); len(got) != TopIntents || got[0].Phrase != "a b c" {
		t.Fatalf("unexpected intents %+v", got)
	}
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"3d", 72 * time.Hour, false},
		{"2W", 14 * 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"0d", 0, true},
		{"-1h", 0, true},
		{"d", 0, true},
		{"tomorrow", 0, true},
		{"3650d", 3650 * 24 * time.Hour, false},
		{"3651d", 0, true},
		{"600w", 0, true},
		{"9223372036854775807d", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseExpiry(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Fatalf("ParseExpiry(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestRegistryCatalogueMatchesDispatch(t *testing.T) {
	reg := newRig().agent.Registry()
	seen := map[string]bool{}
	for _, def := range reg.Catalogue() {
		if seen[def.Name] {
			t.Fatalf("duplicate tool %q", def.Name)
		}
		seen[def.Name] = true
		if _, ok := reg.Lookup(def.Name); !ok {
			t.Fatalf("catalogue tool %q not dispatchable", def.Name)
		}
		if def.Parameters["type"] != "object" {
			t.Fatalf("tool %q parameters are not an object schema", def.Name)
		}
	}
	if len(seen) != 12 {
		t.Fatalf("expected 12 tools, got %d", len(seen))
	}
}

func TestRegistryDecodeTypeError(t *testing.T) {
	reg := newRig().agent.Registry()
	tool, _ := reg.Lookup("list_items")
	_, err := reg.Decode(tool, `{"limit":"ten"}`)
	var argsErr *ArgsError
	if !errors.As(err, &argsErr) || argsErr.Error() != "limit: expected int" {
		t.Fatalf("unexpected error %v", err)
	}
}
