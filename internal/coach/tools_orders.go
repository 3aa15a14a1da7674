package coach

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"bosun/internal/store"
)

const shortIDLength = 8

type listOrdersArgs struct {
	Status string `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed rejected completed cancelled negotiating"`
	Limit  int    `json:"limit,omitempty" validate:"omitempty,min=1,max=20"`
}

func listOrdersTool(d toolDeps) Tool {
	return newTool("list_orders",
		"List recent orders, optionally filtered by status.",
		toolParams(map[string]any{
			"status": enumProp("Only list orders in this status.",
				store.OrderPending, store.OrderConfirmed, store.OrderRejected,
				store.OrderCompleted, store.OrderCancelled, store.OrderNegotiating),
			"limit": prop("integer", "Maximum orders, up to 20 (default 10)."),
		}),
		func(ctx context.Context, tc ToolContext, a *listOrdersArgs) (string, error) {
			limit := a.Limit
			if limit == 0 {
				limit = 10
			}
			orders, err := d.store.ListOrders(ctx, tc.WorkspaceID, a.Status, limit)
			if err != nil {
				return "", err
			}
			if len(orders) == 0 {
				if a.Status != "" {
					return fmt.Sprintf("No %s orders.", a.Status), nil
				}
				return "No orders yet.", nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%d order(s):", len(orders))
			for _, o := range orders {
				fmt.Fprintf(&b, "\n- #%s %dx %s, %.2f (%s, %s)", shortID(o.ID), o.Quantity, o.ItemName,
					o.TotalAmount, o.Status, o.CreatedAt.Format("2006-01-02"))
				if o.SellerProposal != "" && o.Status == store.OrderNegotiating {
					fmt.Fprintf(&b, " proposal: %s", o.SellerProposal)
				}
			}
			return b.String(), nil
		})
}

type confirmOrderArgs struct {
	OrderID string `json:"order_id" validate:"required,min=4"`
	Note    string `json:"note,omitempty" validate:"omitempty,max=500"`
}

func confirmOrderTool(d toolDeps) Tool {
	return newTool("confirm_order",
		"Confirm a pending order and let the customer know.",
		toolParams(map[string]any{
			"order_id": prop("string", "Order id or its first characters (at least 4)."),
			"note":     prop("string", "Optional note for the customer."),
		}, "order_id"),
		func(ctx context.Context, tc ToolContext, a *confirmOrderArgs) (string, error) {
			return d.mutateOrder(ctx, tc, "confirm_order", a.OrderID, store.OrderPending, func(o *store.Order) (store.OrderTransition, string, string) {
				t := store.OrderTransition{From: store.OrderPending, To: store.OrderConfirmed}
				notice := fmt.Sprintf("Good news: your order for %dx %s has been confirmed.", o.Quantity, o.ItemName)
				if a.Note != "" {
					t.SellerNote = &a.Note
					notice += " Note from the shop: " + a.Note
				}
				return t, notice, fmt.Sprintf("Order #%s confirmed.", shortID(o.ID))
			})
		})
}

type rejectOrderArgs struct {
	OrderID string `json:"order_id" validate:"required,min=4"`
	Reason  string `json:"reason" validate:"required,max=500"`
}

func rejectOrderTool(d toolDeps) Tool {
	return newTool("reject_order",
		"Reject a pending order with a reason the customer will see.",
		toolParams(map[string]any{
			"order_id": prop("string", "Order id or its first characters (at least 4)."),
			"reason":   prop("string", "Why the order cannot be fulfilled."),
		}, "order_id", "reason"),
		func(ctx context.Context, tc ToolContext, a *rejectOrderArgs) (string, error) {
			return d.mutateOrder(ctx, tc, "reject_order", a.OrderID, store.OrderPending, func(o *store.Order) (store.OrderTransition, string, string) {
				t := store.OrderTransition{From: store.OrderPending, To: store.OrderRejected, SellerNote: &a.Reason}
				notice := fmt.Sprintf("Unfortunately your order for %dx %s could not be accepted. Reason: %s", o.Quantity, o.ItemName, a.Reason)
				return t, notice, fmt.Sprintf("Order #%s rejected.", shortID(o.ID))
			})
		})
}

type proposeChangeArgs struct {
	OrderID  string `json:"order_id" validate:"required,min=4"`
	Proposal string `json:"proposal" validate:"required,max=1000"`
}

func proposeChangeTool(d toolDeps) Tool {
	return newTool("propose_change",
		"Propose a change to a pending order (price, quantity, alternative item) and wait for the customer's answer.",
		toolParams(map[string]any{
			"order_id": prop("string", "Order id or its first characters (at least 4)."),
			"proposal": prop("string", "The change offered to the customer."),
		}, "order_id", "proposal"),
		func(ctx context.Context, tc ToolContext, a *proposeChangeArgs) (string, error) {
			return d.mutateOrder(ctx, tc, "propose_change", a.OrderID, store.OrderPending, func(o *store.Order) (store.OrderTransition, string, string) {
				t := store.OrderTransition{From: store.OrderPending, To: store.OrderNegotiating, SellerProposal: &a.Proposal}
				notice := fmt.Sprintf("About your order for %dx %s, the shop proposes: %s. Does that work for you?", o.Quantity, o.ItemName, a.Proposal)
				return t, notice, fmt.Sprintf("Proposal sent for order #%s.", shortID(o.ID))
			}, func(ctx context.Context, o *store.Order) {
				if o.CustomerID == "" {
					return
				}
				err := d.store.SetConversationState(ctx, o.CustomerID, store.StateAwaitingProposalResponse,
					map[string]any{"proposal": a.Proposal, "orderId": o.ID})
				if err != nil {
					tc.Logger.WithError(err).WithField("order_id", o.ID).Warn("Failed to mark customer as awaiting proposal response")
				}
			})
		})
}

type grantDiscountArgs struct {
	OrderID         string  `json:"order_id" validate:"required,min=4"`
	DiscountPercent float64 `json:"discount_percent" validate:"required,gt=0,lte=100"`
	Note            string  `json:"note,omitempty" validate:"omitempty,max=500"`
}

func grantDiscountTool(d toolDeps) Tool {
	return newTool("grant_discount",
		"Settle a negotiating order by granting a percentage discount, which confirms it.",
		toolParams(map[string]any{
			"order_id":         prop("string", "Order id or its first characters (at least 4)."),
			"discount_percent": prop("number", "Discount in percent, e.g. 10."),
			"note":             prop("string", "Optional note for the customer."),
		}, "order_id", "discount_percent"),
		func(ctx context.Context, tc ToolContext, a *grantDiscountArgs) (string, error) {
			return d.mutateOrder(ctx, tc, "grant_discount", a.OrderID, store.OrderNegotiating, func(o *store.Order) (store.OrderTransition, string, string) {
				total := math.Round(o.TotalAmount*(1-a.DiscountPercent/100)*100) / 100
				t := store.OrderTransition{From: store.OrderNegotiating, To: store.OrderConfirmed, TotalAmount: &total}
				notice := fmt.Sprintf("Your order for %dx %s is confirmed with a %g%% discount. New total: %.2f.",
					o.Quantity, o.ItemName, a.DiscountPercent, total)
				if a.Note != "" {
					t.SellerNote = &a.Note
					notice += " Note from the shop: " + a.Note
				}
				return t, notice, fmt.Sprintf("Order #%s confirmed with a %g%% discount. New total: %.2f.", shortID(o.ID), a.DiscountPercent, total)
			}, func(ctx context.Context, o *store.Order) {
				if o.CustomerID == "" {
					return
				}
				if err := d.store.SetConversationState(ctx, o.CustomerID, store.StateIdle, nil); err != nil {
					tc.Logger.WithError(err).WithField("order_id", o.ID).Warn("Failed to reset customer conversation state")
				}
			})
		})
}

// orderChange builds the transition, the customer-facing notice and the
// operator-facing summary for a located order.
type orderChange func(o *store.Order) (t store.OrderTransition, notice, summary string)

// mutateOrder locates the order by id prefix within status, applies the
// change, runs after hooks and notifies the customer. An order that is not
// found, or that left status concurrently, is reported without mutation.
func (d toolDeps) mutateOrder(ctx context.Context, tc ToolContext, action, prefix, status string, change orderChange, after ...func(context.Context, *store.Order)) (string, error) {
	prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "#")
	notFound := fmt.Sprintf("No %s order found matching %q.", status, prefix)
	if len(prefix) < 4 {
		return notFound, nil
	}

	o, err := d.store.FindOrderByPrefix(ctx, tc.WorkspaceID, prefix, status)
	if errors.Is(err, store.ErrNotFound) {
		return notFound, nil
	}
	if err != nil {
		return "", err
	}

	t, notice, summary := change(o)
	if err := d.store.TransitionOrder(ctx, tc.WorkspaceID, o.ID, t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound, nil
		}
		return "", err
	}
	for _, fn := range after {
		fn(ctx, o)
	}
	d.notifyCustomer(ctx, tc, o, action, notice)
	return summary, nil
}

// notifyCustomer records a system interaction describing the change and
// schedules it for processing. Failures are logged; the order change stands.
func (d toolDeps) notifyCustomer(ctx context.Context, tc ToolContext, o *store.Order, action, notice string) {
	if o.CustomerID == "" {
		return
	}
	log := tc.Logger.WithField("order_id", o.ID)
	customer, err := d.store.GetCustomer(ctx, o.CustomerID)
	if err != nil {
		log.WithError(err).Warn("Failed to load customer for order notification")
		return
	}
	in := &store.Interaction{
		WorkspaceID: tc.WorkspaceID,
		CustomerID:  customer.ID,
		AuthorID:    customer.PlatformUserID,
		AuthorName:  customer.Name,
		Origin:      store.OriginSystem,
		Status:      store.StatusPending,
		Content:     notice,
		Metadata:    map[string]any{"orderId": o.ID, "action": action},
	}
	id, err := d.store.CreateInteraction(ctx, in)
	if err != nil {
		log.WithError(err).Warn("Failed to record order notification")
		return
	}
	if d.jobs == nil {
		return
	}
	if err := d.jobs.Process(ctx, tc.WorkspaceID, customer.ID, id); err != nil {
		log.WithError(err).WithField("interaction_id", id).Warn("Failed to enqueue order notification")
	}
}

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}
