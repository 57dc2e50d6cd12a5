package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// Webhook results, reported back for logging and metrics.
const (
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookUnmatched = "unmatched"
)

type HandleWebhookCommand struct {
	Payload   []byte
	Signature string
}

type WebhookResult struct {
	EventID   string
	EventType string
	// Result is a reconcile Decision or one of the Webhook* constants.
	Result  string
	OrderID string
}

type WebhookHandler interface {
	Handle(ctx context.Context, cmd HandleWebhookCommand) (*WebhookResult, error)
}

type HandleWebhookCommandHandler struct {
	gateway    ports.PaymentGateway
	ledger     ports.EventLedger
	reconciler Reconciler
	ledgerTTL  time.Duration
	logger     *slog.Logger
}

func NewHandleWebhookCommandHandler(
	gateway ports.PaymentGateway,
	ledger ports.EventLedger,
	reconciler Reconciler,
	ledgerTTL time.Duration,
	logger *slog.Logger,
) *HandleWebhookCommandHandler {
	if ledgerTTL <= 0 {
		ledgerTTL = 72 * time.Hour
	}
	return &HandleWebhookCommandHandler{
		gateway:    gateway,
		ledger:     ledger,
		reconciler: reconciler,
		ledgerTTL:  ledgerTTL,
		logger:     logger,
	}
}

// Handle verifies and applies one processor event. Signature failures and
// storage errors are returned; everything else is acknowledged so the
// processor stops redelivering.
func (h *HandleWebhookCommandHandler) Handle(ctx context.Context, cmd HandleWebhookCommand) (*WebhookResult, error) {
	event, err := h.gateway.ParseEvent(cmd.Payload, cmd.Signature)
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{EventID: event.ID, EventType: event.Type}

	if seen, err := h.ledger.Seen(ctx, event.ID); err != nil {
		h.logger.WarnContext(ctx, "webhook ledger unavailable, processing without dedup",
			"event_id", event.ID,
			"error", err,
		)
	} else if seen {
		result.Result = WebhookDuplicate
		return result, nil
	}

	cmdFor, ok := reconcileCommandFor(event)
	if !ok {
		result.Result = WebhookIgnored
		return result, nil
	}

	outcome, err := h.reconciler.Handle(ctx, cmdFor)
	if errors.Is(err, ports.ErrNotFound) {
		h.logger.WarnContext(ctx, "no order matches payment event",
			"event_id", event.ID,
			"event_type", event.Type,
			"session_id", event.SessionID,
			"payment_intent_id", event.PaymentIntentID,
			"order_id", event.OrderID,
		)
		result.Result = WebhookUnmatched
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Result = string(outcome.Decision)
	result.OrderID = outcome.Order.ID

	if err := h.ledger.MarkProcessed(ctx, event.ID, h.ledgerTTL); err != nil {
		h.logger.WarnContext(ctx, "failed to record processed webhook event",
			"event_id", event.ID,
			"error", err,
		)
	}

	return result, nil
}

func reconcileCommandFor(event *ports.PaymentEvent) (ReconcileCommand, bool) {
	cmd := ReconcileCommand{
		Source:          SourceWebhook,
		PaymentIntentID: event.PaymentIntentID,
	}

	switch event.Type {
	case ports.EventCheckoutCompleted:
		// Delayed payment methods complete the session before money moves.
		// checkout.session.async_payment_succeeded or _failed settles those
		// orders below; until then the order stays pending.
		if event.PaymentStatus != "paid" {
			return cmd, false
		}
		cmd.Outcome = domain.OutcomePaid
		cmd.Lookup = OrderLookup{SessionID: event.SessionID, OrderID: event.OrderID}
	case ports.EventCheckoutAsyncSucceeded:
		cmd.Outcome = domain.OutcomePaid
		cmd.Lookup = OrderLookup{SessionID: event.SessionID, OrderID: event.OrderID}
	case ports.EventCheckoutAsyncFailed:
		cmd.Outcome = domain.OutcomeFailed
		cmd.Lookup = OrderLookup{SessionID: event.SessionID, OrderID: event.OrderID}
	case ports.EventPaymentFailed:
		cmd.Outcome = domain.OutcomeFailed
		cmd.Lookup = OrderLookup{PaymentIntentID: event.PaymentIntentID, OrderID: event.OrderID}
	case ports.EventChargeRefunded:
		cmd.Outcome = domain.OutcomeRefunded
		cmd.Lookup = OrderLookup{PaymentIntentID: event.PaymentIntentID, OrderID: event.OrderID}
	default:
		return cmd, false
	}

	return cmd, true
}
