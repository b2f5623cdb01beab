package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const auditEventColumns = `id, venue_id, order_id, from_status, to_status, actor_id, actor_role, kind, reason, metadata, created_at`

func scanAuditEvent(row rowScanner) (AuditEvent, error) {
	var e AuditEvent
	err := row.Scan(
		&e.ID, &e.VenueID, &e.OrderID, &e.FromStatus, &e.ToStatus,
		&e.ActorID, &e.ActorRole, &e.Kind, &e.Reason, &e.Metadata, &e.CreatedAt,
	)
	return e, err
}

// CreateAuditEventParams append one immutable transition record.
type CreateAuditEventParams struct {
	VenueID    uuid.UUID
	OrderID    uuid.UUID
	FromStatus string
	ToStatus   string
	ActorID    uuid.UUID
	ActorRole  string
	Kind       string
	Reason     pgtype.Text
	Metadata   []byte
}

func (q *Queries) CreateAuditEvent(ctx context.Context, arg CreateAuditEventParams) (AuditEvent, error) {
	metadata := arg.Metadata
	if metadata == nil {
		metadata = []byte("{}")
	}
	row := q.db.QueryRow(ctx, `
		INSERT INTO audit_events (venue_id, order_id, from_status, to_status, actor_id, actor_role, kind, reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+auditEventColumns,
		arg.VenueID, arg.OrderID, arg.FromStatus, arg.ToStatus,
		arg.ActorID, arg.ActorRole, arg.Kind, arg.Reason, metadata,
	)
	return scanAuditEvent(row)
}

// ListAuditEventsParams filter the append-only stream. All filters optional.
type ListAuditEventsParams struct {
	VenueID   uuid.UUID
	ActorID   pgtype.UUID
	OrderID   pgtype.UUID
	Kind      pgtype.Text
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
	Offset    int32
}

func (q *Queries) ListAuditEvents(ctx context.Context, arg ListAuditEventsParams) ([]AuditEvent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+auditEventColumns+` FROM audit_events
		WHERE venue_id = $1
		  AND ($2::uuid IS NULL OR actor_id = $2)
		  AND ($3::uuid IS NULL OR order_id = $3)
		  AND ($4::text IS NULL OR kind = $4)
		  AND ($5::timestamptz IS NULL OR created_at >= $5)
		  AND ($6::timestamptz IS NULL OR created_at < $6)
		ORDER BY created_at DESC
		LIMIT $7 OFFSET $8`,
		arg.VenueID, arg.ActorID, arg.OrderID, arg.Kind, arg.StartDate, arg.EndDate,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
