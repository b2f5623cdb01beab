package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const idempotencyColumns = `key, venue_id, endpoint, order_id, status_code, response, created_at`

func scanIdempotencyKey(row rowScanner) (IdempotencyKey, error) {
	var k IdempotencyKey
	err := row.Scan(
		&k.Key, &k.VenueID, &k.Endpoint, &k.OrderID, &k.StatusCode, &k.Response, &k.CreatedAt,
	)
	return k, err
}

func (q *Queries) GetIdempotencyKey(ctx context.Context, key uuid.UUID) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1`,
		key,
	)
	return scanIdempotencyKey(row)
}

// CreateIdempotencyKeyParams store the first response for a mutation key.
type CreateIdempotencyKeyParams struct {
	Key        uuid.UUID
	VenueID    uuid.UUID
	Endpoint   string
	OrderID    pgtype.UUID
	StatusCode int32
	Response   []byte
}

func (q *Queries) CreateIdempotencyKey(ctx context.Context, arg CreateIdempotencyKeyParams) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (key, venue_id, endpoint, order_id, status_code, response)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+idempotencyColumns,
		arg.Key, arg.VenueID, arg.Endpoint, arg.OrderID, arg.StatusCode, arg.Response,
	)
	return scanIdempotencyKey(row)
}
