package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mmazune/chefcloud/internal/collab"
	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/store"
	"github.com/shopspring/decimal"
)

// Errors returned by the state machine. None of them are retryable from
// inside the machine; retry policy belongs to the caller.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrApprovalRequired  = errors.New("approval required")
	ErrReasonRequired    = errors.New("reason is required")
	ErrAckRequired       = errors.New("wastage acknowledgement required")
	ErrPaymentIncomplete = errors.New("payment does not cover order total")
	ErrStaleState        = errors.New("order status changed, please retry")
)

// Audit kinds recorded by the machine.
const (
	auditKindApplied = "TRANSITION"
	auditKindDenied  = "DENIED"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the DB methods the machine needs.
// Satisfied by *store.Queries (and its WithTx variant).
type Store interface {
	GetOrder(ctx context.Context, arg store.GetOrderParams) (store.Order, error)
	UpdateOrderStatus(ctx context.Context, arg store.UpdateOrderStatusParams) (store.Order, error)
	MarkPendingItemsSent(ctx context.Context, orderID uuid.UUID) (int64, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error)
	CreatePayment(ctx context.Context, arg store.CreatePaymentParams) (store.Payment, error)
	CreateAuditEvent(ctx context.Context, arg store.CreateAuditEventParams) (store.AuditEvent, error)
}

// NewStore creates a Store from a DBTX (pool or tx).
type NewStore func(db store.DBTX) Store

// Actor identifies who is requesting a transition.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Payment carries the settlement supplied with a CLOSED transition.
type Payment struct {
	Method         string
	Total          decimal.Decimal
	AmountReceived decimal.Decimal
}

// TransitionRequest is the validated input to Transition.
type TransitionRequest struct {
	VenueID uuid.UUID
	OrderID uuid.UUID
	Target  string
	Actor   Actor
	Reason  string
	// ApprovalLevel is the role level of a validated elevated credential,
	// zero when none was presented.
	ApprovalLevel int
	// WastageAck confirms the caller accepts already-incurred wastage.
	WastageAck bool
	// Reversal must be set to take the explicit reversal edge out of CLOSED.
	Reversal bool
	Payment  *Payment
}

// Result is the applied transition.
type Result struct {
	Order store.Order
	Items []store.OrderItem
	// RoutedItems is how many items moved PENDING -> SENT on a SENT transition.
	RoutedItems int64
}

// Config holds the machine's monetary policy knobs.
type Config struct {
	// ApprovalThreshold is the gross total above which approval-flagged edges
	// need an elevated credential.
	ApprovalThreshold decimal.Decimal
}

// Machine validates and applies order status transitions. It is the only
// writer of orders.status.
type Machine struct {
	pool      TxBeginner
	db        store.DBTX
	newStore  NewStore
	cfg       Config
	kitchen   collab.KitchenNotifier
	inventory collab.InventoryHook
	ledger    collab.LedgerHook
}

// NewMachine creates a Machine. Nil collaborators default to no-ops.
func NewMachine(pool TxBeginner, db store.DBTX, newStore NewStore, cfg Config,
	kitchen collab.KitchenNotifier, inventory collab.InventoryHook, ledger collab.LedgerHook) *Machine {
	if kitchen == nil {
		kitchen = collab.NoopKitchen{}
	}
	if inventory == nil {
		inventory = collab.NoopInventory{}
	}
	if ledger == nil {
		ledger = collab.NoopLedger{}
	}
	return &Machine{
		pool:      pool,
		db:        db,
		newStore:  newStore,
		cfg:       cfg,
		kitchen:   kitchen,
		inventory: inventory,
		ledger:    ledger,
	}
}

// Transition atomically applies one status transition: status change, payment
// row (on close), and audit record commit together or not at all. Concurrent
// calls against the same order are serialized by conditioning the UPDATE on
// the status observed at read time; the loser fails with ErrStaleState.
func (m *Machine) Transition(ctx context.Context, req TransitionRequest) (*Result, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	st := m.newStore(tx)

	order, err := st.GetOrder(ctx, store.GetOrderParams{ID: req.OrderID, VenueID: req.VenueID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := m.checkGates(order, req); err != nil {
		m.recordDenied(ctx, order, req, err)
		return nil, err
	}

	var payment *store.Payment
	if req.Target == enum.OrderStatusClosed {
		p, err := m.settle(ctx, st, order, req)
		if err != nil {
			m.recordDenied(ctx, order, req, err)
			return nil, err
		}
		payment = p
	}

	updated, err := st.UpdateOrderStatus(ctx, store.UpdateOrderStatusParams{
		ID:             order.ID,
		VenueID:        order.VenueID,
		Status:         req.Target,
		ExpectedStatus: order.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleState
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	var routed int64
	if req.Target == enum.OrderStatusSent {
		routed, err = st.MarkPendingItemsSent(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("mark items sent: %w", err)
		}
	}

	items, err := st.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	metadata, _ := json.Marshal(map[string]string{
		"gross_total": store.NumericToDecimal(updated.GrossTotal).StringFixed(2),
	})
	reason := pgtype.Text{}
	if req.Reason != "" {
		reason = pgtype.Text{String: req.Reason, Valid: true}
	}
	if _, err := st.CreateAuditEvent(ctx, store.CreateAuditEventParams{
		VenueID:    order.VenueID,
		OrderID:    order.ID,
		FromStatus: order.Status,
		ToStatus:   req.Target,
		ActorID:    req.Actor.ID,
		ActorRole:  req.Actor.Role,
		Kind:       auditKindApplied,
		Reason:     reason,
		Metadata:   metadata,
	}); err != nil {
		return nil, fmt.Errorf("record audit event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	m.notify(ctx, updated, items, payment)

	return &Result{Order: updated, Items: items, RoutedItems: routed}, nil
}

// checkGates validates the requested edge against the transition table and
// the request's credentials.
func (m *Machine) checkGates(order store.Order, req TransitionRequest) error {
	edge, ok := Lookup(order.Status, req.Target)
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, req.Target)
	}
	if edge.Reversal && !req.Reversal {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, order.Status)
	}
	if edge.TakeawayOnly && order.ServiceType != enum.ServiceTypeTakeaway {
		return fmt.Errorf("%w: %s -> %s is takeaway-only", ErrInvalidTransition, order.Status, req.Target)
	}
	if enum.RoleLevel(req.Actor.Role) < edge.MinRoleLevel {
		return fmt.Errorf("%w: role %s cannot perform %s -> %s", ErrApprovalRequired, req.Actor.Role, order.Status, req.Target)
	}
	if edge.RequiresReason && strings.TrimSpace(req.Reason) == "" {
		return fmt.Errorf("%w: %s -> %s", ErrReasonRequired, order.Status, req.Target)
	}
	if edge.RequiresAck && !req.WastageAck {
		return fmt.Errorf("%w: %s -> %s", ErrAckRequired, order.Status, req.Target)
	}
	if edge.RequiresApproval {
		gross := store.NumericToDecimal(order.GrossTotal)
		if gross.GreaterThan(m.cfg.ApprovalThreshold) && req.ApprovalLevel < levelManager {
			return fmt.Errorf("%w: gross %s exceeds approval threshold", ErrApprovalRequired, gross.StringFixed(2))
		}
	}
	return nil
}

// settle validates the payment against the order's gross total and records it.
func (m *Machine) settle(ctx context.Context, st Store, order store.Order, req TransitionRequest) (*store.Payment, error) {
	gross := store.NumericToDecimal(order.GrossTotal)
	if req.Payment == nil || req.Payment.Total.LessThan(gross) {
		return nil, fmt.Errorf("%w: gross total is %s", ErrPaymentIncomplete, gross.StringFixed(2))
	}

	method := req.Payment.Method
	if method == "" {
		method = enum.PaymentMethodCash
	}
	received := pgtype.Numeric{}
	change := pgtype.Numeric{}
	if req.Payment.AmountReceived.IsPositive() {
		received = store.DecimalToNumeric(req.Payment.AmountReceived)
		change = store.DecimalToNumeric(req.Payment.AmountReceived.Sub(gross))
	}

	p, err := st.CreatePayment(ctx, store.CreatePaymentParams{
		OrderID:        order.ID,
		Method:         method,
		Amount:         store.DecimalToNumeric(req.Payment.Total),
		AmountReceived: received,
		ChangeAmount:   change,
		ProcessedBy:    req.Actor.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return &p, nil
}

// recordDenied appends a best-effort audit record for a rejected attempt.
// Written outside the transaction so the rollback does not erase it; a write
// failure is logged, never surfaced.
func (m *Machine) recordDenied(ctx context.Context, order store.Order, req TransitionRequest, cause error) {
	metadata, _ := json.Marshal(map[string]string{
		"target": req.Target,
		"error":  cause.Error(),
	})
	reason := pgtype.Text{}
	if req.Reason != "" {
		reason = pgtype.Text{String: req.Reason, Valid: true}
	}
	if _, err := m.newStore(m.db).CreateAuditEvent(ctx, store.CreateAuditEventParams{
		VenueID:    order.VenueID,
		OrderID:    order.ID,
		FromStatus: order.Status,
		ToStatus:   order.Status,
		ActorID:    req.Actor.ID,
		ActorRole:  req.Actor.Role,
		Kind:       auditKindDenied,
		Reason:     reason,
		Metadata:   metadata,
	}); err != nil {
		log.Printf("ERROR: record denied transition: %v", err)
	}
}

// notify fans the applied transition out to external collaborators. Failures
// are logged; the transition is already committed.
func (m *Machine) notify(ctx context.Context, order store.Order, items []store.OrderItem, payment *store.Payment) {
	switch order.Status {
	case enum.OrderStatusSent:
		if err := m.kitchen.ItemsSent(ctx, order, items); err != nil {
			log.Printf("ERROR: kitchen items-sent notify: %v", err)
		}
	case enum.OrderStatusReady:
		if err := m.kitchen.OrderReady(ctx, order); err != nil {
			log.Printf("ERROR: kitchen order-ready notify: %v", err)
		}
	case enum.OrderStatusClosed:
		if err := m.inventory.OnOrderClosed(ctx, order, items); err != nil {
			log.Printf("ERROR: inventory on-order-closed: %v", err)
		}
		breakdown := collab.ClosedBreakdown{
			Subtotal:      store.NumericToDecimal(order.Subtotal),
			TaxTotal:      store.NumericToDecimal(order.TaxTotal),
			DiscountTotal: store.NumericToDecimal(order.DiscountTotal),
			ServiceCharge: store.NumericToDecimal(order.ServiceCharge),
			GrossTotal:    store.NumericToDecimal(order.GrossTotal),
			RoundingDelta: store.NumericToDecimal(order.RoundingDelta),
		}
		if payment != nil {
			breakdown.PaymentTotal = store.NumericToDecimal(payment.Amount)
		}
		if err := m.ledger.OnOrderClosed(ctx, order, breakdown); err != nil {
			log.Printf("ERROR: ledger on-order-closed: %v", err)
		}
	}
}
