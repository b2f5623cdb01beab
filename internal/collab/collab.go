// Package collab defines the narrow boundaries through which the order engine
// talks to external collaborators. Their implementations live elsewhere; the
// engine only emits.
package collab

import (
	"context"

	"github.com/mmazune/chefcloud/internal/store"
	"github.com/shopspring/decimal"
)

// ClosedBreakdown is the full monetary breakdown exposed to the ledger
// collaborator when an order closes.
type ClosedBreakdown struct {
	Subtotal      decimal.Decimal
	TaxTotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	ServiceCharge decimal.Decimal
	GrossTotal    decimal.Decimal
	RoundingDelta decimal.Decimal
	PaymentTotal  decimal.Decimal
}

// KitchenNotifier receives routing signals for the kitchen display.
type KitchenNotifier interface {
	ItemsSent(ctx context.Context, order store.Order, items []store.OrderItem) error
	OrderReady(ctx context.Context, order store.Order) error
}

// InventoryHook is called once per closed order with the final item list.
// Consumption logic is entirely external.
type InventoryHook interface {
	OnOrderClosed(ctx context.Context, order store.Order, items []store.OrderItem) error
}

// LedgerHook is called once per closed order with the tax/discount breakdown.
// GL mapping and journal entries are external.
type LedgerHook interface {
	OnOrderClosed(ctx context.Context, order store.Order, breakdown ClosedBreakdown) error
}

// MultiKitchen fans kitchen signals out to several notifiers. The first
// failure is returned; earlier notifiers have already been called.
type MultiKitchen []KitchenNotifier

func (m MultiKitchen) ItemsSent(ctx context.Context, order store.Order, items []store.OrderItem) error {
	for _, n := range m {
		if err := n.ItemsSent(ctx, order, items); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiKitchen) OrderReady(ctx context.Context, order store.Order) error {
	for _, n := range m {
		if err := n.OrderReady(ctx, order); err != nil {
			return err
		}
	}
	return nil
}

// NoopKitchen discards kitchen signals.
type NoopKitchen struct{}

func (NoopKitchen) ItemsSent(context.Context, store.Order, []store.OrderItem) error { return nil }
func (NoopKitchen) OrderReady(context.Context, store.Order) error                   { return nil }

// NoopInventory discards inventory signals.
type NoopInventory struct{}

func (NoopInventory) OnOrderClosed(context.Context, store.Order, []store.OrderItem) error {
	return nil
}

// NoopLedger discards ledger signals.
type NoopLedger struct{}

func (NoopLedger) OnOrderClosed(context.Context, store.Order, ClosedBreakdown) error { return nil }
