package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Order is one guest check. Orders are never hard-deleted; a dead order is
// VOIDED, a finished one CLOSED.
type Order struct {
	ID            uuid.UUID
	VenueID       uuid.UUID
	OrderNumber   string
	ServiceType   string
	Status        string
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
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      pgtype.Timestamptz
}

// OrderItem is one line within an order. The tax rule is snapshotted onto the
// row at creation so stored totals stay reproducible even if the rule changes.
type OrderItem struct {
	ID           uuid.UUID
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
	Status       string
	VoidReason   pgtype.Text
	Station      pgtype.Text
	Notes        pgtype.Text
	CreatedAt    time.Time
}

// Payment records the settlement of an order on close.
type Payment struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	Method         string
	Amount         pgtype.Numeric
	AmountReceived pgtype.Numeric
	ChangeAmount   pgtype.Numeric
	ProcessedBy    uuid.UUID
	ProcessedAt    time.Time
}

// AuditEvent is one append-only record of an attempted or applied transition.
type AuditEvent struct {
	ID         uuid.UUID
	VenueID    uuid.UUID
	OrderID    uuid.UUID
	FromStatus string
	ToStatus   string
	ActorID    uuid.UUID
	ActorRole  string
	Kind       string
	Reason     pgtype.Text
	Metadata   []byte
	CreatedAt  time.Time
}

// IdempotencyKey is the server-side dedup record for a mutation. Replays of
// the same key return the stored first response without re-applying.
type IdempotencyKey struct {
	Key        uuid.UUID
	VenueID    uuid.UUID
	Endpoint   string
	OrderID    pgtype.UUID
	StatusCode int32
	Response   []byte
	CreatedAt  time.Time
}

// User is a staff member at a venue.
type User struct {
	ID             uuid.UUID
	VenueID        uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Pin            pgtype.Text
	Role           string
	CreatedAt      time.Time
}
