package ports

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// EventType names an order lifecycle event; it doubles as the topic name.
type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventOrderPaid      EventType = "order.paid"
	EventOrderFailed    EventType = "order.failed"
	EventOrderRefunded  EventType = "order.refunded"
	EventOrderCancelled EventType = "order.cancelled"
)

// OrderEvent is the payload published after an order is created or transitions.
type OrderEvent struct {
	Type          EventType            `json:"type"`
	OrderID       string               `json:"order_id"`
	UserID        string               `json:"user_id"`
	TemplateID    string               `json:"template_id,omitempty"`
	BundleID      string               `json:"bundle_id,omitempty"`
	AmountCents   int64                `json:"amount_cents"`
	Currency      string               `json:"currency"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// NewOrderEvent snapshots order into an event of the given type.
func NewOrderEvent(eventType EventType, order domain.Order) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		TemplateID:    order.TemplateID,
		BundleID:      order.BundleID,
		AmountCents:   order.AmountCents,
		Currency:      order.Currency,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		OccurredAt:    time.Now().UTC(),
	}
}

// EventBus defines the contract for publishing order lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, event OrderEvent) error
}
