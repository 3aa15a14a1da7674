package coach

import (
	"context"
	"time"

	"bosun/internal/store"
	"bosun/pkg/logging"
)

// Store is the persistence the coach tools use; *store.Store implements it.
type Store interface {
	GetWorkspace(ctx context.Context, id string) (*store.Workspace, error)
	GetWorkspaceAISettings(ctx context.Context, workspaceID string) (*store.AISettings, error)
	ApplyWorkspacePatch(ctx context.Context, workspaceID string, patch store.WorkspacePatch) error

	SimilarItems(ctx context.Context, workspaceID string, embedding []float32, minSimilarity float64, limit int, excludeIDs []string) ([]store.Item, error)
	KeywordItems(ctx context.Context, workspaceID string, patterns []string, limit int) ([]store.Item, error)
	FindItemByName(ctx context.Context, workspaceID, name string) (*store.Item, error)
	InsertItem(ctx context.Context, it *store.Item) (string, error)
	UpdateItem(ctx context.Context, it *store.Item) error
	DeleteItemByName(ctx context.Context, workspaceID, name string) (int64, error)
	ListItems(ctx context.Context, workspaceID, category string, limit int) ([]store.Item, error)

	ListOrders(ctx context.Context, workspaceID, status string, limit int) ([]store.Order, error)
	FindOrderByPrefix(ctx context.Context, workspaceID, prefix, status string) (*store.Order, error)
	TransitionOrder(ctx context.Context, workspaceID, orderID string, t store.OrderTransition) error
	OrderCountsSince(ctx context.Context, workspaceID string, since time.Time) (map[string]int, error)

	GetCustomer(ctx context.Context, id string) (*store.Customer, error)
	SetConversationState(ctx context.Context, customerID, state string, ctxPatch map[string]any) error
	CreateInteraction(ctx context.Context, in *store.Interaction) (string, error)
	BroadcastTargets(ctx context.Context, workspaceID, keyword string) ([]store.BroadcastTarget, error)
	InboundContents(ctx context.Context, workspaceID string, since time.Time) ([]string, error)
}

type toolDeps struct {
	store  Store
	sender Sender
	jobs   Jobs
	logger logging.Logger
	now    func() time.Time
}

func (d toolDeps) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// defaultTools is the full coach tool set in catalogue order.
func defaultTools(d toolDeps) []Tool {
	return []Tool{
		createItemTool(d),
		listItemsTool(d),
		searchItemsTool(d),
		deleteItemTool(d),
		updateConfigTool(d),
		listOrdersTool(d),
		confirmOrderTool(d),
		rejectOrderTool(d),
		proposeChangeTool(d),
		grantDiscountTool(d),
		broadcastTool(d),
		analyticsTool(d),
	}
}
