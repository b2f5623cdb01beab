package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, method, amount, amount_received, change_amount, processed_by, processed_at`

func scanPayment(row rowScanner) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Method, &p.Amount, &p.AmountReceived, &p.ChangeAmount,
		&p.ProcessedBy, &p.ProcessedAt,
	)
	return p, err
}

// CreatePaymentParams record the settlement taken on close.
type CreatePaymentParams struct {
	OrderID        uuid.UUID
	Method         string
	Amount         pgtype.Numeric
	AmountReceived pgtype.Numeric
	ChangeAmount   pgtype.Numeric
	ProcessedBy    uuid.UUID
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO payments (order_id, method, amount, amount_received, change_amount, processed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+paymentColumns,
		arg.OrderID, arg.Method, arg.Amount, arg.AmountReceived, arg.ChangeAmount, arg.ProcessedBy,
	)
	return scanPayment(row)
}

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY processed_at`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
