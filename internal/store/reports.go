package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// SalesSummaryParams bound the end-of-day figures to one venue and day.
type SalesSummaryParams struct {
	VenueID   uuid.UUID
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
}

// SalesSummaryRow aggregates the orders closed within the window.
type SalesSummaryRow struct {
	ClosedOrders  int64
	VoidedOrders  int64
	Subtotal      pgtype.Numeric
	TaxTotal      pgtype.Numeric
	DiscountTotal pgtype.Numeric
	ServiceCharge pgtype.Numeric
	GrossTotal    pgtype.Numeric
	RoundingDelta pgtype.Numeric
}

func (q *Queries) GetSalesSummary(ctx context.Context, arg SalesSummaryParams) (SalesSummaryRow, error) {
	var row SalesSummaryRow
	dbRow := q.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'CLOSED'),
			COUNT(*) FILTER (WHERE status = 'VOIDED'),
			COALESCE(SUM(subtotal) FILTER (WHERE status = 'CLOSED'), 0),
			COALESCE(SUM(tax_total) FILTER (WHERE status = 'CLOSED'), 0),
			COALESCE(SUM(discount_total) FILTER (WHERE status = 'CLOSED'), 0),
			COALESCE(SUM(service_charge) FILTER (WHERE status = 'CLOSED'), 0),
			COALESCE(SUM(gross_total) FILTER (WHERE status = 'CLOSED'), 0),
			COALESCE(SUM(rounding_delta) FILTER (WHERE status = 'CLOSED'), 0)
		FROM orders
		WHERE venue_id = $1
		  AND created_at >= $2 AND created_at < $3
		  AND status IN ('CLOSED','VOIDED')`,
		arg.VenueID, arg.StartDate, arg.EndDate,
	)
	err := dbRow.Scan(
		&row.ClosedOrders, &row.VoidedOrders,
		&row.Subtotal, &row.TaxTotal, &row.DiscountTotal,
		&row.ServiceCharge, &row.GrossTotal, &row.RoundingDelta,
	)
	return row, err
}

// PaymentMethodTotal is the settled amount per tender type for the window.
type PaymentMethodTotal struct {
	Method string
	Count  int64
	Amount pgtype.Numeric
}

func (q *Queries) ListPaymentTotalsByMethod(ctx context.Context, arg SalesSummaryParams) ([]PaymentMethodTotal, error) {
	rows, err := q.db.Query(ctx, `
		SELECT p.method, COUNT(*), COALESCE(SUM(p.amount), 0)
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE o.venue_id = $1
		  AND p.processed_at >= $2 AND p.processed_at < $3
		GROUP BY p.method
		ORDER BY p.method`,
		arg.VenueID, arg.StartDate, arg.EndDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []PaymentMethodTotal
	for rows.Next() {
		var t PaymentMethodTotal
		if err := rows.Scan(&t.Method, &t.Count, &t.Amount); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
