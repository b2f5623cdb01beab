package enum

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusNew    = "NEW"
	OrderStatusSent   = "SENT"
	OrderStatusInPrep = "IN_PREP"
	OrderStatusReady  = "READY"
	OrderStatusServed = "SERVED"
	OrderStatusClosed = "CLOSED"
	OrderStatusVoided = "VOIDED"
)

const (
	OrderItemStatusPending   = "PENDING"
	OrderItemStatusSent      = "SENT"
	OrderItemStatusPreparing = "PREPARING"
	OrderItemStatusReady     = "READY"
	OrderItemStatusServed    = "SERVED"
	OrderItemStatusVoided    = "VOIDED"
)

const (
	ServiceTypeDineIn   = "DINE_IN"
	ServiceTypeTakeaway = "TAKEAWAY"
)

// ── Offline queue ──

const (
	ActionKindCreateOrder   = "CREATE_ORDER"
	ActionKindAddItems      = "ADD_ITEMS"
	ActionKindUpdateItems   = "UPDATE_ITEMS"
	ActionKindSendToKitchen = "SEND_TO_KITCHEN"
	ActionKindApplyDiscount = "APPLY_DISCOUNT"
	ActionKindPay           = "PAY"
	ActionKindVoid          = "VOID"
)

const (
	QueuedActionPending  = "PENDING"
	QueuedActionSyncing  = "SYNCING"
	QueuedActionSuccess  = "SUCCESS"
	QueuedActionFailed   = "FAILED"
	QueuedActionConflict = "CONFLICT"
)

// ── Staff roles, ordered by privilege ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
)

// RoleLevel maps a role to its privilege level. Higher wins.
// Unknown roles map to 0 (no privileges).
func RoleLevel(role string) int {
	switch role {
	case UserRoleOwner:
		return 4
	case UserRoleManager:
		return 3
	case UserRoleCashier:
		return 2
	case UserRoleKitchen:
		return 1
	}
	return 0
}

// ── Configurable labels (no DB constraint) ──

const (
	StationGrill    = "GRILL"
	StationBeverage = "BEVERAGE"
	StationDessert  = "DESSERT"
	StationExpo     = "EXPO"
)

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodCard     = "CARD"
	PaymentMethodQRIS     = "QRIS"
	PaymentMethodTransfer = "TRANSFER"
)

const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED_AMOUNT"
)
