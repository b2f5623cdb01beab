package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mmazune/chefcloud/internal/auth"
	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/lifecycle"
	"github.com/mmazune/chefcloud/internal/middleware"
	"github.com/mmazune/chefcloud/internal/service"
	"github.com/mmazune/chefcloud/internal/store"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the composition methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	AddItems(ctx context.Context, req service.AddItemsRequest) (*service.OrderResult, error)
	UpdateItems(ctx context.Context, req service.UpdateItemsRequest) (*service.OrderResult, error)
	ApplyDiscount(ctx context.Context, req service.ApplyDiscountRequest) (*service.OrderResult, error)
}

// Transitioner applies lifecycle transitions. Satisfied by *lifecycle.Machine.
type Transitioner interface {
	Transition(ctx context.Context, req lifecycle.TransitionRequest) (*lifecycle.Result, error)
}

// OrderStore defines the database methods needed by order read/update handlers.
// Satisfied by *store.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg store.GetOrderParams) (store.Order, error)
	ListOrders(ctx context.Context, arg store.ListOrdersParams) ([]store.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]store.Payment, error)
	UpdateOrderTable(ctx context.Context, arg store.UpdateOrderTableParams) (store.Order, error)
	UpdateOrderAssignee(ctx context.Context, arg store.UpdateOrderAssigneeParams) (store.Order, error)
	GetIdempotencyKey(ctx context.Context, key uuid.UUID) (store.IdempotencyKey, error)
	CreateIdempotencyKey(ctx context.Context, arg store.CreateIdempotencyKeyParams) (store.IdempotencyKey, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc       OrderServicer
	machine   Transitioner
	store     OrderStore
	jwtSecret string
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, machine Transitioner, store OrderStore, jwtSecret string) *OrderHandler {
	return &OrderHandler{svc: svc, machine: machine, store: store, jwtSecret: jwtSecret}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a venue-scoped subrouter: /venues/{vid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/items", h.AddItems)
	r.Patch("/{id}/items", h.UpdateItems)
	r.Post("/{id}/discount", h.ApplyDiscount)
	r.Post("/{id}/transition", h.Transition)
	r.Patch("/{id}/table", h.UpdateTable)
	r.Patch("/{id}/assignee", h.UpdateAssignee)
}

// --- Request / Response types ---

type newItemRequest struct {
	MenuItemRef  string `json:"menu_item_ref"`
	Name         string `json:"name"`
	Quantity     int32  `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	TaxCode      string `json:"tax_code"`
	TaxRate      string `json:"tax_rate"`
	TaxInclusive bool   `json:"tax_inclusive"`
	Course       string `json:"course"`
	Seat         int32  `json:"seat"`
	Station      string `json:"station"`
	Notes        string `json:"notes"`
}

type createOrderRequest struct {
	ServiceType string           `json:"service_type"`
	TableNumber string           `json:"table_number"`
	Notes       string           `json:"notes"`
	Items       []newItemRequest `json:"items"`
}

type addItemsRequest struct {
	Items []newItemRequest `json:"items"`
}

type itemUpdateRequest struct {
	ItemID     string `json:"item_id"`
	Quantity   int32  `json:"quantity"`
	Notes      string `json:"notes"`
	Void       bool   `json:"void"`
	VoidReason string `json:"void_reason"`
}

type updateItemsRequest struct {
	Updates []itemUpdateRequest `json:"updates"`
}

type applyDiscountRequest struct {
	DiscountType  string `json:"discount_type"`
	DiscountValue string `json:"discount_value"`
}

type paymentRequest struct {
	Method         string `json:"method"`
	Amount         string `json:"amount"`
	AmountReceived string `json:"amount_received"`
}

type transitionRequest struct {
	Target        string          `json:"target"`
	Reason        string          `json:"reason"`
	WastageAck    bool            `json:"wastage_ack"`
	Reversal      bool            `json:"reversal"`
	ApprovalToken string          `json:"approval_token"`
	Payment       *paymentRequest `json:"payment"`
}

type updateTableRequest struct {
	TableNumber string `json:"table_number"`
}

type updateAssigneeRequest struct {
	AssignedTo string `json:"assigned_to"`
}

type orderItemResponse struct {
	ID           uuid.UUID `json:"id"`
	MenuItemRef  string    `json:"menu_item_ref"`
	Name         string    `json:"name"`
	Quantity     int32     `json:"quantity"`
	UnitPrice    string    `json:"unit_price"`
	LineNet      string    `json:"line_net"`
	LineTax      string    `json:"line_tax"`
	TaxCode      string    `json:"tax_code"`
	TaxInclusive bool      `json:"tax_inclusive"`
	Course       string    `json:"course,omitempty"`
	Seat         int32     `json:"seat,omitempty"`
	Status       string    `json:"status"`
	VoidReason   string    `json:"void_reason,omitempty"`
	Station      string    `json:"station,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

type paymentResponse struct {
	ID             uuid.UUID `json:"id"`
	Method         string    `json:"method"`
	Amount         string    `json:"amount"`
	AmountReceived string    `json:"amount_received,omitempty"`
	ChangeAmount   string    `json:"change_amount,omitempty"`
	ProcessedAt    time.Time `json:"processed_at"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"order_number"`
	ServiceType   string              `json:"service_type"`
	Status        string              `json:"status"`
	TableNumber   string              `json:"table_number,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	Subtotal      string              `json:"subtotal"`
	TaxTotal      string              `json:"tax_total"`
	DiscountTotal string              `json:"discount_total"`
	ServiceCharge string              `json:"service_charge"`
	GrossTotal    string              `json:"gross_total"`
	RoundingDelta string              `json:"rounding_delta"`
	CurrencyCode  string              `json:"currency_code"`
	AssignedTo    uuid.UUID           `json:"assigned_to"`
	CreatedBy     uuid.UUID           `json:"created_by"`
	CreatedAt     time.Time           `json:"created_at"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
	Items         []orderItemResponse `json:"items,omitempty"`
	Payments      []paymentResponse   `json:"payments,omitempty"`
	RoutedItems   int64               `json:"routed_items,omitempty"`
}

// --- Handlers ---

// Create creates an order with its initial items.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	venueID, actor, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	key, replayed := h.replayStored(w, r, venueID, "create_order")
	if replayed {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		VenueID:     venueID,
		Actor:       actor,
		ServiceType: req.ServiceType,
		TableNumber: req.TableNumber,
		Notes:       req.Notes,
		Items:       toServiceItems(req.Items),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.respondIdempotent(w, r.Context(), key, venueID, "create_order", result.Order.ID,
		http.StatusCreated, toOrderResponse(result.Order, result.Items, nil, 0))
}

// List returns the venue's orders, filterable by status and date range.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	venueID, _, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	params := store.ListOrdersParams{
		VenueID: venueID,
		Limit:   50,
		Offset:  0,
	}
	if s := r.URL.Query().Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date, expected YYYY-MM-DD"})
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date, expected YYYY-MM-DD"})
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t.AddDate(0, 0, 1), Valid: true}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		params.Limit = int32(n)
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		params.Offset = int32(n)
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o, nil, nil, 0))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// Get returns one order with its items and payments.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	venueID, _, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), store.GetOrderParams{ID: orderID, VenueID: venueID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	payments, err := h.store.ListPaymentsByOrder(r.Context(), order.ID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, items, payments, 0))
}

// AddItems appends lines to an open order.
func (h *OrderHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	venueID, actor, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	key, replayed := h.replayStored(w, r, venueID, "add_items")
	if replayed {
		return
	}

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.AddItems(r.Context(), service.AddItemsRequest{
		VenueID: venueID,
		OrderID: orderID,
		Actor:   actor,
		Items:   toServiceItems(req.Items),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.respondIdempotent(w, r.Context(), key, venueID, "add_items", orderID,
		http.StatusOK, toOrderResponse(result.Order, result.Items, nil, 0))
}

// UpdateItems applies quantity/notes changes and line voids.
func (h *OrderHandler) UpdateItems(w http.ResponseWriter, r *http.Request) {
	venueID, actor, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	key, replayed := h.replayStored(w, r, venueID, "update_items")
	if replayed {
		return
	}

	var req updateItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	updates := make([]service.ItemUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		updates = append(updates, service.ItemUpdate{
			ItemID:     u.ItemID,
			Quantity:   u.Quantity,
			Notes:      u.Notes,
			Void:       u.Void,
			VoidReason: u.VoidReason,
		})
	}

	result, err := h.svc.UpdateItems(r.Context(), service.UpdateItemsRequest{
		VenueID: venueID,
		OrderID: orderID,
		Actor:   actor,
		Updates: updates,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.respondIdempotent(w, r.Context(), key, venueID, "update_items", orderID,
		http.StatusOK, toOrderResponse(result.Order, result.Items, nil, 0))
}

// ApplyDiscount sets or clears the order-level discount.
func (h *OrderHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	venueID, actor, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	key, replayed := h.replayStored(w, r, venueID, "apply_discount")
	if replayed {
		return
	}

	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.ApplyDiscount(r.Context(), service.ApplyDiscountRequest{
		VenueID:       venueID,
		OrderID:       orderID,
		Actor:         actor,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.respondIdempotent(w, r.Context(), key, venueID, "apply_discount", orderID,
		http.StatusOK, toOrderResponse(result.Order, result.Items, nil, 0))
}

// Transition applies one lifecycle transition: send, prep, ready, serve,
// close (with payment), or void.
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	venueID, actor, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	key, replayed := h.replayStored(w, r, venueID, "transition")
	if replayed {
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "target is required"})
		return
	}

	approvalLevel := 0
	if req.ApprovalToken != "" {
		claims, err := auth.ValidateApprovalToken(h.jwtSecret, req.ApprovalToken)
		if err != nil || claims.VenueID != venueID {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid approval token"})
			return
		}
		approvalLevel = enum.RoleLevel(claims.Role)
	}

	var payment *lifecycle.Payment
	if req.Payment != nil {
		amount, err := decimal.NewFromString(req.Payment.Amount)
		if err != nil || amount.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment amount"})
			return
		}
		received := amount
		if req.Payment.AmountReceived != "" {
			received, err = decimal.NewFromString(req.Payment.AmountReceived)
			if err != nil || received.IsNegative() {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount_received"})
				return
			}
		}
		payment = &lifecycle.Payment{
			Method:         req.Payment.Method,
			Total:          amount,
			AmountReceived: received,
		}
	}

	result, err := h.machine.Transition(r.Context(), lifecycle.TransitionRequest{
		VenueID:       venueID,
		OrderID:       orderID,
		Target:        req.Target,
		Actor:         lifecycle.Actor{ID: actor.ID, Role: actor.Role},
		Reason:        req.Reason,
		ApprovalLevel: approvalLevel,
		WastageAck:    req.WastageAck,
		Reversal:      req.Reversal,
		Payment:       payment,
	})
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	h.respondIdempotent(w, r.Context(), key, venueID, "transition", orderID,
		http.StatusOK, toOrderResponse(result.Order, result.Items, nil, result.RoutedItems))
}

// UpdateTable moves an order to another table.
func (h *OrderHandler) UpdateTable(w http.ResponseWriter, r *http.Request) {
	venueID, _, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req updateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	tableNumber := pgtype.Text{}
	if req.TableNumber != "" {
		tableNumber = pgtype.Text{String: req.TableNumber, Valid: true}
	}
	order, err := h.store.UpdateOrderTable(r.Context(), store.UpdateOrderTableParams{
		ID:          orderID,
		VenueID:     venueID,
		TableNumber: tableNumber,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order not found or no longer open"})
			return
		}
		log.Printf("ERROR: update order table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, nil, nil, 0))
}

// UpdateAssignee hands an order to another staff member.
func (h *OrderHandler) UpdateAssignee(w http.ResponseWriter, r *http.Request) {
	venueID, _, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req updateAssigneeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	assignedTo, err := uuid.Parse(req.AssignedTo)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assigned_to"})
		return
	}

	order, err := h.store.UpdateOrderAssignee(r.Context(), store.UpdateOrderAssigneeParams{
		ID:         orderID,
		VenueID:    venueID,
		AssignedTo: assignedTo,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order not found or no longer open"})
			return
		}
		log.Printf("ERROR: update order assignee: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, nil, nil, 0))
}

// --- Helpers ---

// requestScope extracts the venue ID from the path and the actor from the
// authenticated claims.
func (h *OrderHandler) requestScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, service.Actor, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return uuid.Nil, service.Actor{}, false
	}
	venueID, err := uuid.Parse(r.PathValue("vid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid venue ID"})
		return uuid.Nil, service.Actor{}, false
	}
	return venueID, service.Actor{ID: claims.UserID, Role: claims.Role}, true
}

func (h *OrderHandler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, false
	}
	return id, true
}

// replayStored checks the Idempotency-Key header. A previously seen key short
// circuits the request with the stored first response; a key is bound to the
// venue and endpoint of its first use, so reuse elsewhere is refused rather
// than replayed. Returns the parsed key (uuid.Nil when the header is absent)
// and whether a response was written.
func (h *OrderHandler) replayStored(w http.ResponseWriter, r *http.Request,
	venueID uuid.UUID, endpoint string) (uuid.UUID, bool) {
	header := r.Header.Get("Idempotency-Key")
	if header == "" {
		return uuid.Nil, false
	}
	key, err := uuid.Parse(header)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid Idempotency-Key"})
		return uuid.Nil, true
	}

	stored, err := h.store.GetIdempotencyKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return key, false
		}
		log.Printf("ERROR: get idempotency key: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return uuid.Nil, true
	}

	if stored.VenueID != venueID || stored.Endpoint != endpoint {
		writeJSON(w, http.StatusConflict,
			map[string]string{"error": "Idempotency-Key was already used for a different request"})
		return uuid.Nil, true
	}

	writeReplay(w, stored)
	return key, true
}

// writeReplay writes a stored first response verbatim.
func writeReplay(w http.ResponseWriter, stored store.IdempotencyKey) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotency-Replayed", "true")
	w.WriteHeader(int(stored.StatusCode))
	if _, err := w.Write(stored.Response); err != nil {
		log.Printf("ERROR: write replayed response: %v", err)
	}
}

// respondIdempotent writes the response and, when a key was supplied, stores
// it so replays return the same body. If a concurrent request with the same
// key won the insert, its stored response is the canonical one and is
// replayed here; any other storage failure is logged but does not fail the
// already-applied mutation.
func (h *OrderHandler) respondIdempotent(w http.ResponseWriter, ctx context.Context,
	key uuid.UUID, venueID uuid.UUID, endpoint string, orderID uuid.UUID, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Printf("ERROR: marshal response: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if key != uuid.Nil {
		if _, err := h.store.CreateIdempotencyKey(ctx, store.CreateIdempotencyKeyParams{
			Key:        key,
			VenueID:    venueID,
			Endpoint:   endpoint,
			OrderID:    pgtype.UUID{Bytes: orderID, Valid: true},
			StatusCode: int32(status),
			Response:   payload,
		}); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				stored, readErr := h.store.GetIdempotencyKey(ctx, key)
				if readErr == nil {
					writeReplay(w, stored)
					return
				}
				log.Printf("ERROR: reread idempotency key: %v", readErr)
			} else {
				log.Printf("ERROR: store idempotency key: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		log.Printf("ERROR: write response: %v", err)
	}
}

func (h *OrderHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderLocked):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrInvalidServiceType),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidUnitPrice),
		errors.Is(err, service.ErrInvalidTaxRate),
		errors.Is(err, service.ErrInvalidDiscount),
		errors.Is(err, service.ErrInvalidDiscountValue),
		errors.Is(err, service.ErrInvalidItemID),
		errors.Is(err, service.ErrVoidReasonRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: order mutation: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (h *OrderHandler) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrStaleState):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrApprovalRequired):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrReasonRequired), errors.Is(err, lifecycle.ErrAckRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrPaymentIncomplete):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: transition: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func toServiceItems(items []newItemRequest) []service.NewItem {
	out := make([]service.NewItem, 0, len(items))
	for _, it := range items {
		out = append(out, service.NewItem{
			MenuItemRef:  it.MenuItemRef,
			Name:         it.Name,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			TaxCode:      it.TaxCode,
			TaxRate:      it.TaxRate,
			TaxInclusive: it.TaxInclusive,
			Course:       it.Course,
			Seat:         it.Seat,
			Station:      it.Station,
			Notes:        it.Notes,
		})
	}
	return out
}

func toOrderResponse(order store.Order, items []store.OrderItem, payments []store.Payment, routed int64) orderResponse {
	resp := orderResponse{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		ServiceType:   order.ServiceType,
		Status:        order.Status,
		TableNumber:   order.TableNumber.String,
		Notes:         order.Notes.String,
		Subtotal:      store.NumericToDecimal(order.Subtotal).StringFixed(2),
		TaxTotal:      store.NumericToDecimal(order.TaxTotal).StringFixed(2),
		DiscountTotal: store.NumericToDecimal(order.DiscountTotal).StringFixed(2),
		ServiceCharge: store.NumericToDecimal(order.ServiceCharge).StringFixed(2),
		GrossTotal:    store.NumericToDecimal(order.GrossTotal).StringFixed(2),
		RoundingDelta: store.NumericToDecimal(order.RoundingDelta).StringFixed(2),
		CurrencyCode:  order.CurrencyCode,
		AssignedTo:    order.AssignedTo,
		CreatedBy:     order.CreatedBy,
		CreatedAt:     order.CreatedAt,
		RoutedItems:   routed,
	}
	if order.ClosedAt.Valid {
		t := order.ClosedAt.Time
		resp.ClosedAt = &t
	}
	for _, it := range items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:           it.ID,
			MenuItemRef:  it.MenuItemRef,
			Name:         it.Name,
			Quantity:     it.Quantity,
			UnitPrice:    store.NumericToDecimal(it.UnitPrice).StringFixed(2),
			LineNet:      store.NumericToDecimal(it.LineNet).StringFixed(2),
			LineTax:      store.NumericToDecimal(it.LineTax).StringFixed(2),
			TaxCode:      it.TaxCode,
			TaxInclusive: it.TaxInclusive,
			Course:       it.Course.String,
			Seat:         it.Seat.Int32,
			Status:       it.Status,
			VoidReason:   it.VoidReason.String,
			Station:      it.Station.String,
			Notes:        it.Notes.String,
		})
	}
	for _, p := range payments {
		pr := paymentResponse{
			ID:          p.ID,
			Method:      p.Method,
			Amount:      store.NumericToDecimal(p.Amount).StringFixed(2),
			ProcessedAt: p.ProcessedAt,
		}
		if p.AmountReceived.Valid {
			pr.AmountReceived = store.NumericToDecimal(p.AmountReceived).StringFixed(2)
		}
		if p.ChangeAmount.Valid {
			pr.ChangeAmount = store.NumericToDecimal(p.ChangeAmount).StringFixed(2)
		}
		resp.Payments = append(resp.Payments, pr)
	}
	return resp
}
