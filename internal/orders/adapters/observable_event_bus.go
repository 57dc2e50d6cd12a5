package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/kafka"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ObservableEventBus traces and times order lifecycle event publication.
// Publication failures are returned unchanged; callers decide whether they matter.
type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *kafka.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *kafka.Metrics) *ObservableEventBus {
	return &ObservableEventBus{bus: bus, metrics: metrics}
}

func (e *ObservableEventBus) Publish(ctx context.Context, event ports.OrderEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.Publish", trace.WithSpanKind(trace.SpanKindProducer))

	telemetry.AddSpanAttributes(span,
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.operation", "publish"),
		attribute.String("order.id", event.OrderID),
		attribute.String("order.status", string(event.Status)),
		attribute.String("order.payment_status", string(event.PaymentStatus)),
		attribute.String("event.type", string(event.Type)),
	)

	start := time.Now()
	err := e.bus.Publish(ctx, event)
	if e.metrics != nil {
		e.metrics.RecordPublish(ctx, string(event.Type), time.Since(start).Seconds(), err == nil)
	}

	telemetry.EndSpan(span, err)
	return err
}
