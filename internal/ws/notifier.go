package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/store"
)

// Event types pushed to kitchen display and floor clients.
const (
	EventItemsSent  = "items_sent"
	EventOrderReady = "order_ready"
)

// KitchenNotifier pushes order routing events into the venue's WebSocket room.
// Implements collab.KitchenNotifier.
type KitchenNotifier struct {
	hub *Hub
}

// NewKitchenNotifier creates a hub-backed kitchen notifier.
func NewKitchenNotifier(hub *Hub) *KitchenNotifier {
	return &KitchenNotifier{hub: hub}
}

type sentItemPayload struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Quantity int32     `json:"quantity"`
	Station  string    `json:"station,omitempty"`
	Course   string    `json:"course,omitempty"`
	Seat     int32     `json:"seat,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

type itemsSentPayload struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	TableNumber string            `json:"table_number,omitempty"`
	ServiceType string            `json:"service_type"`
	Items       []sentItemPayload `json:"items"`
}

type orderReadyPayload struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	TableNumber string    `json:"table_number,omitempty"`
}

// ItemsSent broadcasts the routed lines to the venue room. Only lines in SENT
// status are included; already-served or voided lines stay off the ticket.
func (n *KitchenNotifier) ItemsSent(ctx context.Context, order store.Order, items []store.OrderItem) error {
	payload := itemsSentPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TableNumber: order.TableNumber.String,
		ServiceType: order.ServiceType,
	}
	for _, it := range items {
		if it.Status != enum.OrderItemStatusSent {
			continue
		}
		payload.Items = append(payload.Items, sentItemPayload{
			ID:       it.ID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Station:  it.Station.String,
			Course:   it.Course.String,
			Seat:     it.Seat.Int32,
			Notes:    it.Notes.String,
		})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal items_sent payload: %w", err)
	}
	n.hub.BroadcastToVenue(order.VenueID, Event{Type: EventItemsSent, Payload: raw})
	return nil
}

// OrderReady broadcasts the pickup signal to the venue room.
func (n *KitchenNotifier) OrderReady(ctx context.Context, order store.Order) error {
	raw, err := json.Marshal(orderReadyPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TableNumber: order.TableNumber.String,
	})
	if err != nil {
		return fmt.Errorf("marshal order_ready payload: %w", err)
	}
	n.hub.BroadcastToVenue(order.VenueID, Event{Type: EventOrderReady, Payload: raw})
	return nil
}
