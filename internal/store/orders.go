package store

import (
	"context"
	"fmt"
	"time"
)

const orderColumns = `id, workspace_id, COALESCE(customer_id::text, ''), COALESCE(interaction_id::text, ''),
			item_name, quantity, total_amount, status, seller_note, seller_proposal, created_at`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	var o Order
	if err := row.Scan(&o.ID, &o.WorkspaceID, &o.CustomerID, &o.InteractionID,
		&o.ItemName, &o.Quantity, &o.TotalAmount, &o.Status, &o.SellerNote, &o.SellerProposal, &o.CreatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// FindOrderByPrefix returns the newest order in status whose id starts with
// prefix.
func (s *Store) FindOrderByPrefix(ctx context.Context, workspaceID, prefix, status string) (*Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM bosun.orders
		WHERE workspace_id = $1 AND id::text LIKE $2 ESCAPE '\' AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, workspaceID, EscapeLike(prefix)+"%", status))
	if err != nil {
		return nil, notFound(err, "find order")
	}
	return o, nil
}

// OrderTransition moves an order between statuses. The update only applies
// while the order is still in From.
type OrderTransition struct {
	From           string
	To             string
	SellerNote     *string
	SellerProposal *string
	TotalAmount    *float64
}

func (s *Store) TransitionOrder(ctx context.Context, workspaceID, orderID string, t OrderTransition) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bosun.orders SET
			status = $4,
			seller_note = COALESCE($5, seller_note),
			seller_proposal = COALESCE($6, seller_proposal),
			total_amount = COALESCE($7, total_amount),
			updated_at = now()
		WHERE workspace_id = $1 AND id = $2 AND status = $3
	`, workspaceID, orderID, t.From, t.To, t.SellerNote, t.SellerProposal, t.TotalAmount)
	if err != nil {
		return fmt.Errorf("transition order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transition order: %w", ErrNotFound)
	}
	return nil
}

// ListOrders returns the newest orders, optionally filtered by status.
func (s *Store) ListOrders(ctx context.Context, workspaceID, status string, limit int) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM bosun.orders
		WHERE workspace_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, workspaceID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// OrderCountsSince groups orders created since since by status.
func (s *Store) OrderCountsSince(ctx context.Context, workspaceID string, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM bosun.orders
		WHERE workspace_id = $1 AND created_at >= $2
		GROUP BY status
	`, workspaceID, since)
	if err != nil {
		return nil, fmt.Errorf("order counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

