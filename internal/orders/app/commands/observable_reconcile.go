package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableReconciler struct {
	handler Reconciler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableReconciler(handler Reconciler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableReconciler {
	return &ObservableReconciler{handler: handler, logger: logger, metrics: metrics}
}

func (o *ObservableReconciler) Handle(ctx context.Context, cmd ReconcileCommand) (*ReconcileResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReconcileCommand.Handle")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("reconcile.source", string(cmd.Source)),
		attribute.String("reconcile.outcome", string(cmd.Outcome)),
		attribute.String("checkout.session_id", cmd.Lookup.SessionID),
		attribute.String("payment.intent_id", cmd.Lookup.PaymentIntentID),
	)

	result, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			o.metrics.RecordTransition(ctx, string(cmd.Source), string(cmd.Outcome), "unmatched")
			telemetry.AddSpanEvent(span, "order not found")
			return nil, err
		}
		o.metrics.RecordTransition(ctx, string(cmd.Source), string(cmd.Outcome), "error")
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "reconciliation failed",
			"error", err,
			"source", cmd.Source,
			"outcome", cmd.Outcome,
			"session_id", cmd.Lookup.SessionID,
			"payment_intent_id", cmd.Lookup.PaymentIntentID,
		)
		return nil, err
	}

	o.metrics.RecordTransition(ctx, string(cmd.Source), string(cmd.Outcome), string(result.Decision))
	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", result.Order.ID),
		attribute.String("reconcile.decision", string(result.Decision)),
	)

	attrs := []any{
		"order_id", result.Order.ID,
		"source", cmd.Source,
		"outcome", cmd.Outcome,
		"status", result.Order.Status,
		"payment_status", result.Order.PaymentStatus,
	}
	switch result.Decision {
	case domain.DecisionApply:
		o.logger.InfoContext(ctx, "order transitioned", attrs...)
	case domain.DecisionDiscard:
		o.logger.WarnContext(ctx, "payment outcome discarded", attrs...)
	default:
		o.logger.DebugContext(ctx, "order already reconciled", attrs...)
	}

	telemetry.SetSpanSuccess(span)
	return result, nil
}
