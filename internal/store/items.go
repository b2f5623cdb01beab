package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderItemColumns = `id, order_id, menu_item_ref, name, quantity, unit_price,
	line_net, line_tax, tax_code, tax_rate, tax_inclusive, course, seat,
	status, void_reason, station, notes, created_at`

func scanOrderItem(row rowScanner) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(
		&it.ID, &it.OrderID, &it.MenuItemRef, &it.Name, &it.Quantity, &it.UnitPrice,
		&it.LineNet, &it.LineTax, &it.TaxCode, &it.TaxRate, &it.TaxInclusive,
		&it.Course, &it.Seat, &it.Status, &it.VoidReason, &it.Station, &it.Notes,
		&it.CreatedAt,
	)
	return it, err
}

// CreateOrderItemParams are the inputs for inserting an order line.
type CreateOrderItemParams struct {
	OrderID      uuid.UUID
	MenuItemRef  string
	Name         string
	Quantity     int32
	UnitPrice    pgtype.Numeric
	LineNet      pgtype.Numeric
	LineTax      pgtype.Numeric
	TaxCode      string
	TaxRate      pgtype.Numeric
	TaxInclusive bool
	Course       pgtype.Text
	Seat         pgtype.Int4
	Station      pgtype.Text
	Notes        pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, menu_item_ref, name, quantity, unit_price,
			line_net, line_tax, tax_code, tax_rate, tax_inclusive, course, seat, station, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+orderItemColumns,
		arg.OrderID, arg.MenuItemRef, arg.Name, arg.Quantity, arg.UnitPrice,
		arg.LineNet, arg.LineTax, arg.TaxCode, arg.TaxRate, arg.TaxInclusive,
		arg.Course, arg.Seat, arg.Station, arg.Notes,
	)
	return scanOrderItem(row)
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderItemColumns+` FROM order_items
		WHERE order_id = $1 ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkPendingItemsSent moves all PENDING items on the order to SENT.
// Returns the number of items routed to the kitchen.
func (q *Queries) MarkPendingItemsSent(ctx context.Context, orderID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE order_items SET status = 'SENT'
		WHERE order_id = $1 AND status = 'PENDING'`,
		orderID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdateOrderItemParams change quantity and/or notes on a line.
type UpdateOrderItemParams struct {
	ID       uuid.UUID
	OrderID  uuid.UUID
	Quantity int32
	Notes    pgtype.Text
}

func (q *Queries) UpdateOrderItem(ctx context.Context, arg UpdateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE order_items SET quantity = $3, notes = $4
		WHERE id = $1 AND order_id = $2 AND status <> 'VOIDED'
		RETURNING `+orderItemColumns,
		arg.ID, arg.OrderID, arg.Quantity, arg.Notes,
	)
	return scanOrderItem(row)
}

// UpdateOrderItemTotalsParams overwrite a line's recomputed net/tax split.
type UpdateOrderItemTotalsParams struct {
	ID      uuid.UUID
	LineNet pgtype.Numeric
	LineTax pgtype.Numeric
}

func (q *Queries) UpdateOrderItemTotals(ctx context.Context, arg UpdateOrderItemTotalsParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE order_items SET line_net = $2, line_tax = $3 WHERE id = $1`,
		arg.ID, arg.LineNet, arg.LineTax,
	)
	return err
}

// VoidOrderItemParams void a single line with a reason. Item voids are the
// only way a line leaves an order; lines are never deleted.
type VoidOrderItemParams struct {
	ID      uuid.UUID
	OrderID uuid.UUID
	Reason  string
}

func (q *Queries) VoidOrderItem(ctx context.Context, arg VoidOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE order_items SET status = 'VOIDED', void_reason = $3
		WHERE id = $1 AND order_id = $2 AND status <> 'VOIDED'
		RETURNING `+orderItemColumns,
		arg.ID, arg.OrderID, arg.Reason,
	)
	return scanOrderItem(row)
}
