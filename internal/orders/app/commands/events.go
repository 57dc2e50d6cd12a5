package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	catalogports "github.com/dejobratic/storefront/internal/catalog/ports"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// publish emits a lifecycle event. Failures are logged and not returned: the
// order row is already durable and is the source of truth.
func publish(ctx context.Context, bus ports.EventBus, logger *slog.Logger, eventType ports.EventType, order domain.Order) {
	if err := bus.Publish(ctx, ports.NewOrderEvent(eventType, order)); err != nil {
		logger.WarnContext(ctx, "failed to publish order event",
			slog.String("event_type", string(eventType)),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

// catalogError maps catalog store errors onto the order flow's sentinels.
func catalogError(kind, id string, err error) error {
	if errors.Is(err, catalogports.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ports.ErrNotFound)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}
