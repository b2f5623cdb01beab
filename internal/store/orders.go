package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const orderColumns = `id, venue_id, order_number, service_type, status, table_number, notes,
	subtotal, tax_total, discount_total, service_charge, gross_total, rounding_delta,
	discount_type, discount_value, currency_code, assigned_to, created_by,
	created_at, updated_at, closed_at`

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.VenueID, &o.OrderNumber, &o.ServiceType, &o.Status, &o.TableNumber, &o.Notes,
		&o.Subtotal, &o.TaxTotal, &o.DiscountTotal, &o.ServiceCharge, &o.GrossTotal, &o.RoundingDelta,
		&o.DiscountType, &o.DiscountValue, &o.CurrencyCode, &o.AssignedTo, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt, &o.ClosedAt,
	)
	return o, err
}

// CreateOrderParams are the inputs for inserting a new order.
type CreateOrderParams struct {
	VenueID       uuid.UUID
	OrderNumber   string
	ServiceType   string
	TableNumber   pgtype.Text
	Notes         pgtype.Text
	Subtotal      pgtype.Numeric
	TaxTotal      pgtype.Numeric
	DiscountTotal pgtype.Numeric
	ServiceCharge pgtype.Numeric
	GrossTotal    pgtype.Numeric
	RoundingDelta pgtype.Numeric
	DiscountType  pgtype.Text
	DiscountValue pgtype.Numeric
	CurrencyCode  string
	AssignedTo    uuid.UUID
	CreatedBy     uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (venue_id, order_number, service_type, table_number, notes,
			subtotal, tax_total, discount_total, service_charge, gross_total, rounding_delta,
			discount_type, discount_value, currency_code, assigned_to, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+orderColumns,
		arg.VenueID, arg.OrderNumber, arg.ServiceType, arg.TableNumber, arg.Notes,
		arg.Subtotal, arg.TaxTotal, arg.DiscountTotal, arg.ServiceCharge, arg.GrossTotal,
		arg.RoundingDelta, arg.DiscountType, arg.DiscountValue, arg.CurrencyCode,
		arg.AssignedTo, arg.CreatedBy,
	)
	return scanOrder(row)
}

// GetOrderParams identify an order within a venue.
type GetOrderParams struct {
	ID      uuid.UUID
	VenueID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1 AND venue_id = $2`,
		arg.ID, arg.VenueID,
	)
	return scanOrder(row)
}

// GetNextOrderNumber returns 1 + the highest order number suffix for the venue.
// Callers must be prepared to retry on the (venue_id, order_number) unique
// constraint: two concurrent transactions can read the same MAX.
func (q *Queries) GetNextOrderNumber(ctx context.Context, venueID uuid.UUID) (int32, error) {
	var next int32
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM '[0-9]+$') AS integer)), 0) + 1
		FROM orders WHERE venue_id = $1`,
		venueID,
	).Scan(&next)
	return next, err
}

// ListOrdersParams filter and paginate the order list.
type ListOrdersParams struct {
	VenueID   uuid.UUID
	Status    pgtype.Text
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
	Offset    int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE venue_id = $1
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`,
		arg.VenueID, arg.Status, arg.StartDate, arg.EndDate, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatusParams update an order's status conditioned on the status
// the caller observed. No matching row means the order moved underneath the
// caller (or does not exist): the optimistic-concurrency check failed.
type UpdateOrderStatusParams struct {
	ID             uuid.UUID
	VenueID        uuid.UUID
	Status         string
	ExpectedStatus string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = $3,
		    closed_at = CASE WHEN $3 = 'CLOSED' THEN now() ELSE closed_at END,
		    updated_at = now()
		WHERE id = $1 AND venue_id = $2 AND status = $4
		RETURNING `+orderColumns,
		arg.ID, arg.VenueID, arg.Status, arg.ExpectedStatus,
	)
	return scanOrder(row)
}

// UpdateOrderTotalsParams overwrite the order's monetary breakdown.
type UpdateOrderTotalsParams struct {
	ID            uuid.UUID
	Subtotal      pgtype.Numeric
	TaxTotal      pgtype.Numeric
	DiscountTotal pgtype.Numeric
	ServiceCharge pgtype.Numeric
	GrossTotal    pgtype.Numeric
	RoundingDelta pgtype.Numeric
	DiscountType  pgtype.Text
	DiscountValue pgtype.Numeric
}

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET subtotal = $2, tax_total = $3, discount_total = $4, service_charge = $5,
		    gross_total = $6, rounding_delta = $7, discount_type = $8, discount_value = $9,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		arg.ID, arg.Subtotal, arg.TaxTotal, arg.DiscountTotal, arg.ServiceCharge,
		arg.GrossTotal, arg.RoundingDelta, arg.DiscountType, arg.DiscountValue,
	)
	return scanOrder(row)
}

// UpdateOrderTableParams move an order to another table.
type UpdateOrderTableParams struct {
	ID          uuid.UUID
	VenueID     uuid.UUID
	TableNumber pgtype.Text
}

func (q *Queries) UpdateOrderTable(ctx context.Context, arg UpdateOrderTableParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET table_number = $3, updated_at = now()
		WHERE id = $1 AND venue_id = $2 AND status NOT IN ('CLOSED','VOIDED')
		RETURNING `+orderColumns,
		arg.ID, arg.VenueID, arg.TableNumber,
	)
	return scanOrder(row)
}

// UpdateOrderAssigneeParams hand an order to another staff member.
type UpdateOrderAssigneeParams struct {
	ID         uuid.UUID
	VenueID    uuid.UUID
	AssignedTo uuid.UUID
}

func (q *Queries) UpdateOrderAssignee(ctx context.Context, arg UpdateOrderAssigneeParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET assigned_to = $3, updated_at = now()
		WHERE id = $1 AND venue_id = $2 AND status NOT IN ('CLOSED','VOIDED')
		RETURNING `+orderColumns,
		arg.ID, arg.VenueID, arg.AssignedTo,
	)
	return scanOrder(row)
}
