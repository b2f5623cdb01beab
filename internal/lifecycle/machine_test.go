package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mmazune/chefcloud/internal/collab"
	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/store"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr error
	committed bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	m.committed = true
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error { return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockStore implements Store with configurable behavior.
type mockStore struct {
	getOrderFn             func(ctx context.Context, arg store.GetOrderParams) (store.Order, error)
	updateOrderStatusFn    func(ctx context.Context, arg store.UpdateOrderStatusParams) (store.Order, error)
	markPendingItemsSentFn func(ctx context.Context, orderID uuid.UUID) (int64, error)
	listOrderItemsFn       func(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error)
	createPaymentFn        func(ctx context.Context, arg store.CreatePaymentParams) (store.Payment, error)

	auditEvents []store.CreateAuditEventParams
	payments    []store.CreatePaymentParams
	updates     []store.UpdateOrderStatusParams
}

func (m *mockStore) GetOrder(ctx context.Context, arg store.GetOrderParams) (store.Order, error) {
	return m.getOrderFn(ctx, arg)
}
func (m *mockStore) UpdateOrderStatus(ctx context.Context, arg store.UpdateOrderStatusParams) (store.Order, error) {
	m.updates = append(m.updates, arg)
	return m.updateOrderStatusFn(ctx, arg)
}
func (m *mockStore) MarkPendingItemsSent(ctx context.Context, orderID uuid.UUID) (int64, error) {
	if m.markPendingItemsSentFn != nil {
		return m.markPendingItemsSentFn(ctx, orderID)
	}
	return 0, nil
}
func (m *mockStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error) {
	if m.listOrderItemsFn != nil {
		return m.listOrderItemsFn(ctx, orderID)
	}
	return nil, nil
}
func (m *mockStore) CreatePayment(ctx context.Context, arg store.CreatePaymentParams) (store.Payment, error) {
	m.payments = append(m.payments, arg)
	if m.createPaymentFn != nil {
		return m.createPaymentFn(ctx, arg)
	}
	return store.Payment{ID: uuid.New(), OrderID: arg.OrderID, Method: arg.Method, Amount: arg.Amount, ProcessedBy: arg.ProcessedBy}, nil
}
func (m *mockStore) CreateAuditEvent(ctx context.Context, arg store.CreateAuditEventParams) (store.AuditEvent, error) {
	m.auditEvents = append(m.auditEvents, arg)
	return store.AuditEvent{ID: uuid.New(), OrderID: arg.OrderID, FromStatus: arg.FromStatus, ToStatus: arg.ToStatus, Kind: arg.Kind}, nil
}

// fakeKitchen captures collaborator signals.
type fakeKitchen struct {
	sentOrders  []uuid.UUID
	readyOrders []uuid.UUID
}

func (f *fakeKitchen) ItemsSent(ctx context.Context, order store.Order, items []store.OrderItem) error {
	f.sentOrders = append(f.sentOrders, order.ID)
	return nil
}
func (f *fakeKitchen) OrderReady(ctx context.Context, order store.Order) error {
	f.readyOrders = append(f.readyOrders, order.ID)
	return nil
}

type fakeLedger struct {
	breakdowns []collab.ClosedBreakdown
}

func (f *fakeLedger) OnOrderClosed(ctx context.Context, order store.Order, b collab.ClosedBreakdown) error {
	f.breakdowns = append(f.breakdowns, b)
	return nil
}

// --- Test helpers ---

const testThreshold = "100000"

var (
	testVenueID = uuid.New()
	testActorID = uuid.New()
)

func testOrder(status string) store.Order {
	return store.Order{
		ID:          uuid.New(),
		VenueID:     testVenueID,
		OrderNumber: "CHF-001",
		ServiceType: enum.ServiceTypeDineIn,
		Status:      status,
		GrossTotal:  store.DecimalToNumeric(decimal.NewFromInt(50000)),
	}
}

// defaultMockStore returns a store that serves order and applies any status
// update against it. Individual tests override what they care about.
func defaultMockStore(order store.Order) *mockStore {
	return &mockStore{
		getOrderFn: func(ctx context.Context, arg store.GetOrderParams) (store.Order, error) {
			if arg.ID == order.ID && arg.VenueID == order.VenueID {
				return order, nil
			}
			return store.Order{}, pgx.ErrNoRows
		},
		updateOrderStatusFn: func(ctx context.Context, arg store.UpdateOrderStatusParams) (store.Order, error) {
			updated := order
			updated.Status = arg.Status
			return updated, nil
		},
	}
}

func newTestMachine(ms *mockStore, kitchen collab.KitchenNotifier, ledger collab.LedgerHook) (*Machine, *mockTx) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	threshold, _ := decimal.NewFromString(testThreshold)
	newStore := func(db store.DBTX) Store { return ms }
	return NewMachine(pool, nil, newStore, Config{ApprovalThreshold: threshold}, kitchen, nil, ledger), tx
}

func transitionReq(order store.Order, target, role string) TransitionRequest {
	return TransitionRequest{
		VenueID: order.VenueID,
		OrderID: order.ID,
		Target:  target,
		Actor:   Actor{ID: testActorID, Role: role},
	}
}

// =====================
// Gate tests
// =====================

func TestTransition_UnknownEdge(t *testing.T) {
	order := testOrder(enum.OrderStatusNew)
	ms := defaultMockStore(order)
	machine, _ := newTestMachine(ms, nil, nil)

	_, err := machine.Transition(context.Background(), transitionReq(order, enum.OrderStatusReady, enum.UserRoleCashier))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(ms.updates) != 0 {
		t.Error("status update must not run for a rejected edge")
	}
	// Denied attempts still land in the audit stream.
	if len(ms.auditEvents) != 1 || ms.auditEvents[0].Kind != auditKindDenied {
		t.Errorf("expected one DENIED audit event, got %+v", ms.auditEvents)
	}
}

func TestTransition_OrderNotFound(t *testing.T) {
	order := testOrder(enum.OrderStatusNew)
	ms := defaultMockStore(order)
	machine, _ := newTestMachine(ms, nil, nil)

	req := transitionReq(order, enum.OrderStatusSent, enum.UserRoleCashier)
	req.OrderID = uuid.New()
	if _, err := machine.Transition(context.Background(), req); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestTransition_RoleBelowMinimum(t *testing.T) {
	order := testOrder(enum.OrderStatusNew)
	ms := defaultMockStore(order)
	machine, _ := newTestMachine(ms, nil, nil)

	_, err := machine.Transition(context.Background(), transitionReq(order, enum.OrderStatusSent, enum.UserRoleKitchen))
	if !errors.Is(err, ErrApprovalRequired) {
		t.Fatalf("expected ErrApprovalRequired, got %v", err)
	}
}

func TestTransition_VoidFromSentWithoutReason(t *testing.T) {
	order := testOrder(enum.OrderStatusSent)
	ms := defaultMockStore(order)
	machine, _ := newTestMachine(ms, nil, nil)

	_, err := machine.Transition(context.Background(), transitionReq(order, enum.OrderStatusVoided, enum.UserRoleCashier))
	if !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
}

func TestTransition_VoidFromSentWithReason(t *testing.T) {
	order := testOrder(enum.OrderStatusSent)
	ms := defaultMockStore(order)
	machine, tx := newTestMachine(ms, nil, nil)

	req := transitionReq(order, enum.OrderStatusVoided, enum.UserRoleCashier)
	req.Reason = "guest walked out"
	result, err := machine.Transition(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Order.Status != enum.OrderStatusVoided {
		t.Errorf("status = %s, want VOIDED", result.Order.Status)
	}
	if !tx.committed {
		t.Error("transaction was not committed")
	}
	if len(ms.auditEvents) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(ms.auditEvents))
	}
	ev := ms.auditEvents[0]
	if ev.Kind != auditKindApplied || ev.FromStatus != enum.OrderStatusSent || ev.ToStatus != enum.OrderStatusVoided {
		t.Errorf("audit event = %+v", ev)
	}
	if !ev.Reason.Valid || ev.Reason.String != "guest walked out" {
		t.Errorf("audit reason = %+v", ev.Reason)
	}
}

func TestTransition_VoidAboveThresholdNeedsApproval(t *testing.T) {
	order := testOrder(enum.OrderStatusSent)
	order.GrossTotal = store.DecimalToNumeric(decimal.NewFromInt(500000))
	ms := defaultMockStore(order)
	machine, _ := newTestMachine(ms, nil, nil)

	req := transitionReq(order, enum.OrderStatusVoided, enum.UserRoleCashier)
	req.Reason = "kitchen fire"
	if _, err := machine.Transition(context.Background(), req); !errors.Is(err, ErrApprovalRequired) {
		t.Fatalf("expected ErrApprovalRequired, got %v", err)
	}

	req.ApprovalLevel = enum.RoleLevel(enum.UserRoleManager)
	if _, err := machine.Transition(context.Background(), req); err != nil {
		t.Fatalf("approved void failed: %v", err)
	}
}

func TestTransition_VoidFromReadyNeedsAck(t *testing.T) {
	order := testOrder(enum.OrderStatusReady)
	ms := defaultMockStore(order)
	machine, _ := newTestMachine(ms, nil, nil)

	req := transitionReq(order, enum.OrderStatusVoided, enum.UserRoleCashier)
	req.Reason = "wrong table"
	if _, err := machine.Transition(context.Background(), req); !errors.Is(err, ErrAckRequired) {
		t.Fatalf("expected ErrAckRequired, got %v", err)
	}

	req.WastageAck = true
	if _, err := machine.Transition(context.Background(), req); err != nil {
		t.Fatalf("acknowledged void failed: %v", err)
	}
}

func TestTransition_EarlyCloseRejectedForDineIn(t *testing.T) {
	order := testOrder(enum.OrderStatusSent)
	ms := defaultMockStore(order)
	machine, _ := newTestMachine(ms, nil, nil)

	req := transitionReq(order, enum.OrderStatusClosed, enum.UserRoleCashier)
	req.Payment = &Payment{Total: decimal.NewFromInt(50000)}
	if _, err := machine.Transition(context.Background(), req); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransition_ReversalNeedsFlagAndOwner(t *testing.T) {
	order := testOrder(enum.OrderStatusClosed)
	ms := defaultMockStore(order)
	machine, _ := newTestMachine(ms, nil, nil)

	req := transitionReq(order, enum.OrderStatusVoided, enum.UserRoleOwner)
	req.Reason = "duplicate charge"
	if _, err := machine.Transition(context.Background(), req); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition without reversal flag, got %v", err)
	}

	req.Reversal = true
	if _, err := machine.Transition(context.Background(), req); err != nil {
		t.Fatalf("owner reversal failed: %v", err)
	}

	req.Actor.Role = enum.UserRoleManager
	if _, err := machine.Transition(context.Background(), req); !errors.Is(err, ErrApprovalRequired) {
		t.Fatalf("expected ErrApprovalRequired for manager reversal, got %v", err)
	}
}

// =====================
// Close / payment tests
// =====================

func TestTransition_ClosePaymentIncomplete(t *testing.T) {
	order := testOrder(enum.OrderStatusServed)
	ms := defaultMockStore(order)
	machine, _ := newTestMachine(ms, nil, nil)

	req := transitionReq(order, enum.OrderStatusClosed, enum.UserRoleCashier)
	req.Payment = &Payment{Total: decimal.NewFromInt(49999)}
	if _, err := machine.Transition(context.Background(), req); !errors.Is(err, ErrPaymentIncomplete) {
		t.Fatalf("expected ErrPaymentIncomplete, got %v", err)
	}

	req.Payment = nil
	if _, err := machine.Transition(context.Background(), req); !errors.Is(err, ErrPaymentIncomplete) {
		t.Fatalf("expected ErrPaymentIncomplete without payment, got %v", err)
	}
	if len(ms.payments) != 0 {
		t.Error("no payment row may be written for an incomplete payment")
	}
}

func TestTransition_CloseRecordsPaymentAndChange(t *testing.T) {
	order := testOrder(enum.OrderStatusServed)
	ms := defaultMockStore(order)
	ledger := &fakeLedger{}
	machine, _ := newTestMachine(ms, nil, ledger)

	req := transitionReq(order, enum.OrderStatusClosed, enum.UserRoleCashier)
	req.Payment = &Payment{
		Method:         enum.PaymentMethodCash,
		Total:          decimal.NewFromInt(50000),
		AmountReceived: decimal.NewFromInt(60000),
	}
	result, err := machine.Transition(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Order.Status != enum.OrderStatusClosed {
		t.Errorf("status = %s, want CLOSED", result.Order.Status)
	}
	if len(ms.payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(ms.payments))
	}
	p := ms.payments[0]
	if !store.NumericToDecimal(p.ChangeAmount).Equal(decimal.NewFromInt(10000)) {
		t.Errorf("change = %s, want 10000", store.NumericToDecimal(p.ChangeAmount))
	}

	// Ledger collaborator sees the full breakdown after commit.
	if len(ledger.breakdowns) != 1 {
		t.Fatalf("expected 1 ledger callback, got %d", len(ledger.breakdowns))
	}
	if !ledger.breakdowns[0].GrossTotal.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("ledger gross = %s", ledger.breakdowns[0].GrossTotal)
	}
}

// =====================
// Concurrency tests
// =====================

func TestTransition_StaleStateLosesRace(t *testing.T) {
	// Both callers read READY; the store only applies the first commit. The
	// second observes no matching row and must surface ErrStaleState.
	order := testOrder(enum.OrderStatusReady)
	ms := defaultMockStore(order)
	applied := false
	ms.updateOrderStatusFn = func(ctx context.Context, arg store.UpdateOrderStatusParams) (store.Order, error) {
		if applied {
			return store.Order{}, pgx.ErrNoRows
		}
		applied = true
		updated := order
		updated.Status = arg.Status
		return updated, nil
	}
	machine, _ := newTestMachine(ms, nil, nil)

	req := transitionReq(order, enum.OrderStatusServed, enum.UserRoleCashier)
	if _, err := machine.Transition(context.Background(), req); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}
	if _, err := machine.Transition(context.Background(), req); !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected ErrStaleState for the losing caller, got %v", err)
	}
}

func TestTransition_UpdateConditionedOnObservedStatus(t *testing.T) {
	order := testOrder(enum.OrderStatusNew)
	ms := defaultMockStore(order)
	machine, _ := newTestMachine(ms, nil, nil)

	if _, err := machine.Transition(context.Background(), transitionReq(order, enum.OrderStatusSent, enum.UserRoleCashier)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(ms.updates))
	}
	if ms.updates[0].ExpectedStatus != enum.OrderStatusNew {
		t.Errorf("expected status guard = %s, want NEW", ms.updates[0].ExpectedStatus)
	}
}

// =====================
// Kitchen routing
// =====================

func TestTransition_SendRoutesPendingItems(t *testing.T) {
	order := testOrder(enum.OrderStatusNew)
	ms := defaultMockStore(order)
	ms.markPendingItemsSentFn = func(ctx context.Context, orderID uuid.UUID) (int64, error) {
		return 3, nil
	}
	kitchen := &fakeKitchen{}
	machine, _ := newTestMachine(ms, kitchen, nil)

	result, err := machine.Transition(context.Background(), transitionReq(order, enum.OrderStatusSent, enum.UserRoleCashier))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RoutedItems != 3 {
		t.Errorf("routed items = %d, want 3", result.RoutedItems)
	}
	if len(kitchen.sentOrders) != 1 || kitchen.sentOrders[0] != order.ID {
		t.Errorf("kitchen items-sent not emitted: %v", kitchen.sentOrders)
	}
}

func TestTransition_ReadyNotifiesKitchenDisplay(t *testing.T) {
	order := testOrder(enum.OrderStatusInPrep)
	ms := defaultMockStore(order)
	kitchen := &fakeKitchen{}
	machine, _ := newTestMachine(ms, kitchen, nil)

	if _, err := machine.Transition(context.Background(), transitionReq(order, enum.OrderStatusReady, enum.UserRoleKitchen)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kitchen.readyOrders) != 1 {
		t.Errorf("order-ready not emitted: %v", kitchen.readyOrders)
	}
}
