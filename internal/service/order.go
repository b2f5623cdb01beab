package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/money"
	"github.com/mmazune/chefcloud/internal/store"
	"github.com/shopspring/decimal"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidServiceType   = errors.New("invalid service_type")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidUnitPrice     = errors.New("invalid unit_price")
	ErrInvalidTaxRate       = errors.New("invalid tax_rate")
	ErrInvalidDiscount      = errors.New("invalid discount_type")
	ErrInvalidDiscountValue = errors.New("invalid discount_value")
	ErrInvalidItemID        = errors.New("invalid item_id")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderLocked          = errors.New("order can no longer be modified")
	ErrItemNotFound         = errors.New("order item not found")
	ErrVoidReasonRequired   = errors.New("void_reason is required to void an item")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the DB methods needed to create and mutate orders.
// Satisfied by *store.Queries (and its WithTx variant).
type Store interface {
	GetNextOrderNumber(ctx context.Context, venueID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	GetOrder(ctx context.Context, arg store.GetOrderParams) (store.Order, error)
	CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error)
	UpdateOrderItem(ctx context.Context, arg store.UpdateOrderItemParams) (store.OrderItem, error)
	UpdateOrderItemTotals(ctx context.Context, arg store.UpdateOrderItemTotalsParams) error
	VoidOrderItem(ctx context.Context, arg store.VoidOrderItemParams) (store.OrderItem, error)
	UpdateOrderTotals(ctx context.Context, arg store.UpdateOrderTotalsParams) (store.Order, error)
	CreateAuditEvent(ctx context.Context, arg store.CreateAuditEventParams) (store.AuditEvent, error)
}

// NewStore creates a Store from a DBTX (pool or tx).
type NewStore func(db store.DBTX) Store

// Pricing carries the venue's monetary policy: the default tax rule items
// fall back to, an optional service charge, and the currency's cash rounding.
type Pricing struct {
	CurrencyCode  string
	DefaultTax    money.TaxRule
	ServiceCharge *money.TaxRule
	Rounding      money.Rounding
}

// Actor identifies the staff member performing a mutation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// NewItem is one line to add to an order. UnitPrice and TaxRate are decimal
// strings. An empty TaxCode means the venue default tax rule applies.
type NewItem struct {
	MenuItemRef  string
	Name         string
	Quantity     int32
	UnitPrice    string
	TaxCode      string
	TaxRate      string
	TaxInclusive bool
	Course       string
	Seat         int32
	Station      string
	Notes        string
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	VenueID     uuid.UUID
	Actor       Actor
	ServiceType string
	TableNumber string
	Notes       string
	Items       []NewItem
}

// AddItemsRequest appends lines to an open order.
type AddItemsRequest struct {
	VenueID uuid.UUID
	OrderID uuid.UUID
	Actor   Actor
	Items   []NewItem
}

// ItemUpdate changes or voids one existing line.
type ItemUpdate struct {
	ItemID     string
	Quantity   int32
	Notes      string
	Void       bool
	VoidReason string
}

// UpdateItemsRequest applies a batch of line updates to an open order.
type UpdateItemsRequest struct {
	VenueID uuid.UUID
	OrderID uuid.UUID
	Actor   Actor
	Updates []ItemUpdate
}

// ApplyDiscountRequest sets (or clears, with an empty type) the order-level
// discount.
type ApplyDiscountRequest struct {
	VenueID       uuid.UUID
	OrderID       uuid.UUID
	Actor         Actor
	DiscountType  string
	DiscountValue string
}

// OrderResult is an order with its lines after a mutation.
type OrderResult struct {
	Order store.Order
	Items []store.OrderItem
}

// OrderService handles order composition: creation, line mutations, and
// discounts. Status transitions belong to the lifecycle machine; this service
// only touches orders that are still mutable.
type OrderService struct {
	pool     TxBeginner
	newStore NewStore
	pricing  Pricing
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewStore, pricing Pricing) *OrderService {
	return &OrderService{pool: pool, newStore: newStore, pricing: pricing}
}

// mutableStatus reports whether item composition may still change. Once the
// kitchen is done (READY and later) lines are fixed; only the lifecycle
// machine moves the order from there.
func mutableStatus(status string) bool {
	switch status {
	case enum.OrderStatusNew, enum.OrderStatusSent, enum.OrderStatusInPrep:
		return true
	}
	return false
}

// preparedItem holds a validated line ready to insert.
type preparedItem struct {
	params store.CreateOrderItemParams
	line   money.Line
}

// CreateOrder validates, prices, and creates an order atomically. Retries up
// to maxOrderNumberRetries times on order_number unique constraint violations
// (concurrent transactions can read the same MAX).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	if req.ServiceType != enum.ServiceTypeDineIn && req.ServiceType != enum.ServiceTypeTakeaway {
		return nil, ErrInvalidServiceType
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_venue_id_order_number_key"
	}
	return false
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	st := s.newStore(tx)

	nextNum, err := st.GetNextOrderNumber(ctx, req.VenueID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}
	orderNumber := fmt.Sprintf("CHF-%03d", nextNum)

	prepared, err := s.prepareItems(req.Items)
	if err != nil {
		return nil, err
	}

	lines := make([]money.Line, len(prepared))
	for i, pi := range prepared {
		lines[i] = pi.line
	}
	totals, err := money.CalculateOrderTotals(lines, nil, s.pricing.ServiceCharge, s.pricing.Rounding)
	if err != nil {
		return nil, err
	}

	tableNumber := pgtype.Text{}
	if req.TableNumber != "" {
		tableNumber = pgtype.Text{String: req.TableNumber, Valid: true}
	}
	notes := pgtype.Text{}
	if req.Notes != "" {
		notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	order, err := st.CreateOrder(ctx, store.CreateOrderParams{
		VenueID:       req.VenueID,
		OrderNumber:   orderNumber,
		ServiceType:   req.ServiceType,
		TableNumber:   tableNumber,
		Notes:         notes,
		Subtotal:      store.DecimalToNumeric(totals.Subtotal),
		TaxTotal:      store.DecimalToNumeric(totals.TaxTotal),
		DiscountTotal: store.DecimalToNumeric(totals.DiscountTotal),
		ServiceCharge: store.DecimalToNumeric(totals.ServiceCharge),
		GrossTotal:    store.DecimalToNumeric(totals.GrossTotal),
		RoundingDelta: store.DecimalToNumeric(totals.RoundingDelta),
		CurrencyCode:  s.pricing.CurrencyCode,
		AssignedTo:    req.Actor.ID,
		CreatedBy:     req.Actor.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]store.OrderItem, 0, len(prepared))
	for _, pi := range prepared {
		pi.params.OrderID = order.ID
		item, err := st.CreateOrderItem(ctx, pi.params)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if err := s.audit(ctx, st, order, req.Actor, enum.ActionKindCreateOrder, map[string]string{
		"items":       fmt.Sprintf("%d", len(items)),
		"gross_total": totals.GrossTotal.StringFixed(2),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderResult{Order: order, Items: items}, nil
}

// AddItems appends lines to a mutable order and recomputes its totals.
func (s *OrderService) AddItems(ctx context.Context, req AddItemsRequest) (*OrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	prepared, err := s.prepareItems(req.Items)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	st := s.newStore(tx)

	order, err := s.getMutableOrder(ctx, st, req.VenueID, req.OrderID)
	if err != nil {
		return nil, err
	}

	for _, pi := range prepared {
		pi.params.OrderID = order.ID
		if _, err := st.CreateOrderItem(ctx, pi.params); err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
	}

	updated, items, err := s.recomputeTotals(ctx, st, order)
	if err != nil {
		return nil, err
	}

	if err := s.audit(ctx, st, order, req.Actor, enum.ActionKindAddItems, map[string]string{
		"added":       fmt.Sprintf("%d", len(prepared)),
		"gross_total": store.NumericToDecimal(updated.GrossTotal).StringFixed(2),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: updated, Items: items}, nil
}

// UpdateItems applies quantity/notes changes and line voids, then recomputes
// totals. Voiding a line always requires a reason.
func (s *OrderService) UpdateItems(ctx context.Context, req UpdateItemsRequest) (*OrderResult, error) {
	if len(req.Updates) == 0 {
		return nil, ErrEmptyItems
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	st := s.newStore(tx)

	order, err := s.getMutableOrder(ctx, st, req.VenueID, req.OrderID)
	if err != nil {
		return nil, err
	}

	voided := 0
	for i, upd := range req.Updates {
		itemID, err := uuid.Parse(upd.ItemID)
		if err != nil {
			return nil, fmt.Errorf("updates[%d]: %w", i, ErrInvalidItemID)
		}

		if upd.Void {
			if upd.VoidReason == "" {
				return nil, fmt.Errorf("updates[%d]: %w", i, ErrVoidReasonRequired)
			}
			if _, err := st.VoidOrderItem(ctx, store.VoidOrderItemParams{
				ID:      itemID,
				OrderID: order.ID,
				Reason:  upd.VoidReason,
			}); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, fmt.Errorf("updates[%d]: %w", i, ErrItemNotFound)
				}
				return nil, fmt.Errorf("updates[%d]: void item: %w", i, err)
			}
			voided++
			continue
		}

		if upd.Quantity <= 0 {
			return nil, fmt.Errorf("updates[%d]: %w", i, ErrInvalidQuantity)
		}
		notes := pgtype.Text{}
		if upd.Notes != "" {
			notes = pgtype.Text{String: upd.Notes, Valid: true}
		}
		item, err := st.UpdateOrderItem(ctx, store.UpdateOrderItemParams{
			ID:       itemID,
			OrderID:  order.ID,
			Quantity: upd.Quantity,
			Notes:    notes,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("updates[%d]: %w", i, ErrItemNotFound)
			}
			return nil, fmt.Errorf("updates[%d]: update item: %w", i, err)
		}

		// Quantity changed, refresh the stored line split.
		amount := store.NumericToDecimal(item.UnitPrice).Mul(decimal.NewFromInt32(item.Quantity))
		lt, err := money.CalculateLineTax(amount, itemRule(item))
		if err != nil {
			return nil, fmt.Errorf("updates[%d]: %w", i, err)
		}
		if err := st.UpdateOrderItemTotals(ctx, store.UpdateOrderItemTotalsParams{
			ID:      item.ID,
			LineNet: store.DecimalToNumeric(lt.Net),
			LineTax: store.DecimalToNumeric(lt.TaxAmount),
		}); err != nil {
			return nil, fmt.Errorf("updates[%d]: update item totals: %w", i, err)
		}
	}

	updated, items, err := s.recomputeTotals(ctx, st, order)
	if err != nil {
		return nil, err
	}

	if err := s.audit(ctx, st, order, req.Actor, enum.ActionKindUpdateItems, map[string]string{
		"updated":     fmt.Sprintf("%d", len(req.Updates)-voided),
		"voided":      fmt.Sprintf("%d", voided),
		"gross_total": store.NumericToDecimal(updated.GrossTotal).StringFixed(2),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: updated, Items: items}, nil
}

// ApplyDiscount sets or clears the order-level discount and recomputes totals.
func (s *OrderService) ApplyDiscount(ctx context.Context, req ApplyDiscountRequest) (*OrderResult, error) {
	var discountType pgtype.Text
	var discountValue pgtype.Numeric
	if req.DiscountType != "" {
		if req.DiscountType != enum.DiscountTypePercentage && req.DiscountType != enum.DiscountTypeFixed {
			return nil, ErrInvalidDiscount
		}
		dv, err := decimal.NewFromString(req.DiscountValue)
		if err != nil || dv.IsNegative() {
			return nil, ErrInvalidDiscountValue
		}
		discountType = pgtype.Text{String: req.DiscountType, Valid: true}
		discountValue = store.DecimalToNumeric(dv)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	st := s.newStore(tx)

	order, err := s.getMutableOrder(ctx, st, req.VenueID, req.OrderID)
	if err != nil {
		return nil, err
	}

	order.DiscountType = discountType
	order.DiscountValue = discountValue

	updated, items, err := s.recomputeTotals(ctx, st, order)
	if err != nil {
		return nil, err
	}

	if err := s.audit(ctx, st, order, req.Actor, enum.ActionKindApplyDiscount, map[string]string{
		"discount_type":  req.DiscountType,
		"discount_value": req.DiscountValue,
		"gross_total":    store.NumericToDecimal(updated.GrossTotal).StringFixed(2),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: updated, Items: items}, nil
}

func (s *OrderService) getMutableOrder(ctx context.Context, st Store, venueID, orderID uuid.UUID) (store.Order, error) {
	order, err := st.GetOrder(ctx, store.GetOrderParams{ID: orderID, VenueID: venueID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, ErrOrderNotFound
		}
		return store.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !mutableStatus(order.Status) {
		return store.Order{}, fmt.Errorf("%w: status is %s", ErrOrderLocked, order.Status)
	}
	return order, nil
}

// prepareItems validates request lines and computes their tax splits.
func (s *OrderService) prepareItems(items []NewItem) ([]preparedItem, error) {
	prepared := make([]preparedItem, 0, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		unitPrice, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidUnitPrice)
		}

		rule := s.pricing.DefaultTax
		if item.TaxCode != "" {
			rate, err := decimal.NewFromString(item.TaxRate)
			if err != nil {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidTaxRate)
			}
			rule = money.TaxRule{Code: item.TaxCode, Rate: rate, Inclusive: item.TaxInclusive}
		}

		amount := unitPrice.Mul(decimal.NewFromInt32(item.Quantity))
		lt, err := money.CalculateLineTax(amount, rule)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}

		course := pgtype.Text{}
		if item.Course != "" {
			course = pgtype.Text{String: item.Course, Valid: true}
		}
		seat := pgtype.Int4{}
		if item.Seat > 0 {
			seat = pgtype.Int4{Int32: item.Seat, Valid: true}
		}
		station := pgtype.Text{}
		if item.Station != "" {
			station = pgtype.Text{String: item.Station, Valid: true}
		}
		notes := pgtype.Text{}
		if item.Notes != "" {
			notes = pgtype.Text{String: item.Notes, Valid: true}
		}

		prepared = append(prepared, preparedItem{
			params: store.CreateOrderItemParams{
				MenuItemRef:  item.MenuItemRef,
				Name:         item.Name,
				Quantity:     item.Quantity,
				UnitPrice:    store.DecimalToNumeric(unitPrice),
				LineNet:      store.DecimalToNumeric(lt.Net),
				LineTax:      store.DecimalToNumeric(lt.TaxAmount),
				TaxCode:      rule.Code,
				TaxRate:      store.DecimalToNumeric(rule.Rate),
				TaxInclusive: rule.Inclusive,
				Course:       course,
				Seat:         seat,
				Station:      station,
				Notes:        notes,
			},
			line: money.Line{Amount: amount, Rule: rule},
		})
	}
	return prepared, nil
}

// itemRule rebuilds the tax rule snapshotted on a stored line.
func itemRule(item store.OrderItem) money.TaxRule {
	return money.TaxRule{
		Code:      item.TaxCode,
		Rate:      store.NumericToDecimal(item.TaxRate),
		Inclusive: item.TaxInclusive,
	}
}

// recomputeTotals rebuilds the order's monetary breakdown from its non-voided
// lines and current discount, overwriting the stored totals.
func (s *OrderService) recomputeTotals(ctx context.Context, st Store, order store.Order) (store.Order, []store.OrderItem, error) {
	items, err := st.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return store.Order{}, nil, fmt.Errorf("list order items: %w", err)
	}

	var lines []money.Line
	for _, item := range items {
		if item.Status == enum.OrderItemStatusVoided {
			continue
		}
		amount := store.NumericToDecimal(item.UnitPrice).Mul(decimal.NewFromInt32(item.Quantity))
		lines = append(lines, money.Line{Amount: amount, Rule: itemRule(item)})
	}

	var discount *money.Discount
	if order.DiscountType.Valid {
		discount = &money.Discount{
			Type:  order.DiscountType.String,
			Value: store.NumericToDecimal(order.DiscountValue),
		}
	}

	totals, err := money.CalculateOrderTotals(lines, discount, s.pricing.ServiceCharge, s.pricing.Rounding)
	if err != nil {
		return store.Order{}, nil, err
	}

	updated, err := st.UpdateOrderTotals(ctx, store.UpdateOrderTotalsParams{
		ID:            order.ID,
		Subtotal:      store.DecimalToNumeric(totals.Subtotal),
		TaxTotal:      store.DecimalToNumeric(totals.TaxTotal),
		DiscountTotal: store.DecimalToNumeric(totals.DiscountTotal),
		ServiceCharge: store.DecimalToNumeric(totals.ServiceCharge),
		GrossTotal:    store.DecimalToNumeric(totals.GrossTotal),
		RoundingDelta: store.DecimalToNumeric(totals.RoundingDelta),
		DiscountType:  order.DiscountType,
		DiscountValue: order.DiscountValue,
	})
	if err != nil {
		return store.Order{}, nil, fmt.Errorf("update order totals: %w", err)
	}
	return updated, items, nil
}

// audit appends a composition-change record inside the current transaction.
func (s *OrderService) audit(ctx context.Context, st Store, order store.Order, actor Actor, kind string, meta map[string]string) error {
	metadata, _ := json.Marshal(meta)
	if _, err := st.CreateAuditEvent(ctx, store.CreateAuditEventParams{
		VenueID:    order.VenueID,
		OrderID:    order.ID,
		FromStatus: order.Status,
		ToStatus:   order.Status,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Kind:       kind,
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}
