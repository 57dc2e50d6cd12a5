package kafka

import (
	"context"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

// NoopEventBus logs events without sending them to Kafka. Used when no brokers are configured.
type NoopEventBus struct{}

func NewNoopEventBus() *NoopEventBus {
	return &NoopEventBus{}
}

func (n *NoopEventBus) Publish(ctx context.Context, event ports.OrderEvent) error {
	slog.DebugContext(ctx, "event::"+string(event.Type),
		slog.String("order_id", event.OrderID),
		slog.String("status", string(event.Status)),
		slog.String("payment_status", string(event.PaymentStatus)),
	)
	return nil
}
