package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableWebhookHandler struct {
	handler WebhookHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableWebhookHandler(handler WebhookHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableWebhookHandler {
	return &ObservableWebhookHandler{handler: handler, logger: logger, metrics: metrics}
}

func (o *ObservableWebhookHandler) Handle(ctx context.Context, cmd HandleWebhookCommand) (*WebhookResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "HandleWebhookCommand.Handle")
	defer span.End()

	result, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		if errors.Is(err, ports.ErrSignatureInvalid) {
			o.metrics.RecordWebhookEvent(ctx, "unknown", "rejected")
			telemetry.AddSpanEvent(span, "signature rejected")
			o.logger.WarnContext(ctx, "rejected webhook with invalid signature", "error", err)
			return nil, err
		}
		o.metrics.RecordWebhookEvent(ctx, "unknown", "error")
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "webhook processing failed", "error", err)
		return nil, err
	}

	o.metrics.RecordWebhookEvent(ctx, result.EventType, result.Result)
	if result.Result == WebhookUnmatched {
		o.metrics.RecordWebhookLookupMiss(ctx, result.EventType)
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("webhook.event_id", result.EventID),
		attribute.String("webhook.event_type", result.EventType),
		attribute.String("webhook.result", result.Result),
	)
	o.logger.InfoContext(ctx, "webhook handled",
		"event_id", result.EventID,
		"event_type", result.EventType,
		"result", result.Result,
		"order_id", result.OrderID,
	)

	telemetry.SetSpanSuccess(span)
	return result, nil
}
