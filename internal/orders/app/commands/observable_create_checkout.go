package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCheckoutHandler struct {
	handler CheckoutHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCheckoutHandler(handler CheckoutHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCheckoutHandler {
	return &ObservableCheckoutHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCheckoutHandler) Handle(ctx context.Context, cmd CreateCheckoutCommand) (*CheckoutResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateCheckoutCommand.Handle")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		o.metrics.RecordCheckout(ctx, cmd.Kind(), success, time.Since(start).Seconds())
	}()

	telemetry.AddSpanAttributes(span,
		attribute.String("checkout.kind", cmd.Kind()),
		attribute.String("checkout.template_id", cmd.TemplateID),
		attribute.String("checkout.bundle_id", cmd.BundleID),
	)

	result, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		if errors.Is(err, ports.ErrInconsistent) {
			o.metrics.RecordInconsistentSession(ctx)
			o.logger.ErrorContext(ctx, "checkout session opened without a persisted order",
				"error", err,
				"template_id", cmd.TemplateID,
				"bundle_id", cmd.BundleID,
			)
			return nil, err
		}
		o.logger.WarnContext(ctx, "checkout failed",
			"error", err,
			"template_id", cmd.TemplateID,
			"bundle_id", cmd.BundleID,
		)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", result.Order.ID),
		attribute.String("checkout.session_id", result.SessionID),
		attribute.Int64("order.amount_cents", result.Order.AmountCents),
	)

	o.logger.InfoContext(ctx, "checkout session opened",
		"order_id", result.Order.ID,
		"session_id", result.SessionID,
		"user_id", result.Order.UserID,
		"amount_cents", result.Order.AmountCents,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return result, nil
}
