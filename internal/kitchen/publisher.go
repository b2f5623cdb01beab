// Package kitchen publishes order routing events to a RabbitMQ topic exchange
// so off-box consumers (printer daemons, kitchen display aggregators) can
// subscribe per venue or per station without touching the API server.
package kitchen

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/store"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchange       = "kitchen_events"
	publishTimeout = 5 * time.Second
)

// Publisher pushes kitchen events over AMQP. Implements collab.KitchenNotifier.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials the broker and declares the topic exchange.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Publisher{conn: conn, ch: ch}, nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if p.ch != nil && !p.ch.IsClosed() {
		if err := p.ch.Close(); err != nil {
			return fmt.Errorf("close channel: %w", err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}

type ticketLine struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Quantity int32     `json:"quantity"`
	Course   string    `json:"course,omitempty"`
	Seat     int32     `json:"seat,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

type ticketMessage struct {
	OrderID     uuid.UUID    `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	VenueID     uuid.UUID    `json:"venue_id"`
	ServiceType string       `json:"service_type"`
	TableNumber string       `json:"table_number,omitempty"`
	Station     string       `json:"station"`
	Lines       []ticketLine `json:"lines"`
}

type readyMessage struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	VenueID     uuid.UUID `json:"venue_id"`
	TableNumber string    `json:"table_number,omitempty"`
}

// ItemsSent publishes one ticket per station so each prep station only
// receives its own lines. Items without a station go to EXPO.
func (p *Publisher) ItemsSent(ctx context.Context, order store.Order, items []store.OrderItem) error {
	byStation := make(map[string][]ticketLine)
	for _, it := range items {
		if it.Status != enum.OrderItemStatusSent {
			continue
		}
		station := it.Station.String
		if station == "" {
			station = enum.StationExpo
		}
		byStation[station] = append(byStation[station], ticketLine{
			ID:       it.ID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Course:   it.Course.String,
			Seat:     it.Seat.Int32,
			Notes:    it.Notes.String,
		})
	}

	for station, lines := range byStation {
		msg := ticketMessage{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			VenueID:     order.VenueID,
			ServiceType: order.ServiceType,
			TableNumber: order.TableNumber.String,
			Station:     station,
			Lines:       lines,
		}
		routingKey := fmt.Sprintf("venue.%s.ticket.%s", order.VenueID, station)
		if err := p.publish(ctx, routingKey, msg); err != nil {
			return err
		}
	}
	return nil
}

// OrderReady publishes the pickup signal.
func (p *Publisher) OrderReady(ctx context.Context, order store.Order) error {
	msg := readyMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		VenueID:     order.VenueID,
		TableNumber: order.TableNumber.String,
	}
	routingKey := fmt.Sprintf("venue.%s.ready", order.VenueID)
	return p.publish(ctx, routingKey, msg)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}
