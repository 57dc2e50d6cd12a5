package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// maxTransitionAttempts bounds how often a lost compare-and-set is retried
// against a freshly loaded order.
const maxTransitionAttempts = 3

// Source names the trigger that reported a payment outcome.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceConfirm Source = "confirm"
	SourceSweep   Source = "sweep"
)

// OrderLookup identifies the order an outcome belongs to. Keys are tried in
// order: session id, payment intent id, then the order id carried in
// processor metadata.
type OrderLookup struct {
	SessionID       string
	PaymentIntentID string
	OrderID         string
}

type ReconcileCommand struct {
	Source          Source
	Lookup          OrderLookup
	Outcome         domain.Outcome
	PaymentIntentID string
}

type ReconcileResult struct {
	Order    domain.Order
	Decision domain.Decision
}

// Reconciler applies a payment outcome to an order. Webhook, confirmation and
// sweep all go through it.
type Reconciler interface {
	Handle(ctx context.Context, cmd ReconcileCommand) (*ReconcileResult, error)
}

type ReconcileCommandHandler struct {
	repo   ports.OrderRepository
	events ports.EventBus
	logger *slog.Logger
}

func NewReconcileCommandHandler(repo ports.OrderRepository, events ports.EventBus, logger *slog.Logger) *ReconcileCommandHandler {
	return &ReconcileCommandHandler{repo: repo, events: events, logger: logger}
}

func (h *ReconcileCommandHandler) Handle(ctx context.Context, cmd ReconcileCommand) (*ReconcileResult, error) {
	order, err := h.find(ctx, cmd.Lookup)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		change, decision := order.Resolve(cmd.Outcome, cmd.PaymentIntentID)
		if decision != domain.DecisionApply {
			return &ReconcileResult{Order: *order, Decision: decision}, nil
		}

		err := h.repo.UpdateStatus(ctx, order.ID, ports.StatusUpdate{
			FromStatus:        order.Status,
			FromPaymentStatus: order.PaymentStatus,
			Change:            change,
		})
		if err == nil {
			updated := order.With(change)
			updated.UpdatedAt = time.Now().UTC()
			publish(ctx, h.events, h.logger, eventFor(cmd.Outcome), updated)
			return &ReconcileResult{Order: updated, Decision: domain.DecisionApply}, nil
		}
		if !errors.Is(err, ports.ErrStaleStatus) || attempt == maxTransitionAttempts {
			return nil, fmt.Errorf("apply %s to order %s: %w", cmd.Outcome, order.ID, err)
		}

		order, err = h.repo.GetByID(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("reload order: %w", err)
		}
	}
}

func (h *ReconcileCommandHandler) find(ctx context.Context, lookup OrderLookup) (*domain.Order, error) {
	if lookup.SessionID != "" {
		order, err := h.repo.GetBySessionID(ctx, lookup.SessionID)
		if !errors.Is(err, ports.ErrNotFound) {
			return order, err
		}
	}

	if lookup.PaymentIntentID != "" {
		order, err := h.repo.GetByPaymentIntentID(ctx, lookup.PaymentIntentID)
		if !errors.Is(err, ports.ErrNotFound) {
			return order, err
		}
	}

	if lookup.OrderID != "" {
		order, err := h.repo.GetByID(ctx, lookup.OrderID)
		if err != nil {
			return nil, err
		}
		// The metadata fallback must not attach an outcome to an order
		// already bound to a different session or payment intent.
		if lookup.SessionID != "" && order.CheckoutSessionID != lookup.SessionID {
			return nil, fmt.Errorf("order %s belongs to another session: %w", order.ID, ports.ErrNotFound)
		}
		if lookup.PaymentIntentID != "" && order.PaymentIntentID != "" && order.PaymentIntentID != lookup.PaymentIntentID {
			return nil, fmt.Errorf("order %s belongs to another payment intent: %w", order.ID, ports.ErrNotFound)
		}
		return order, nil
	}

	return nil, ports.ErrNotFound
}

func eventFor(outcome domain.Outcome) ports.EventType {
	switch outcome {
	case domain.OutcomePaid:
		return ports.EventOrderPaid
	case domain.OutcomeFailed:
		return ports.EventOrderFailed
	default:
		return ports.EventOrderRefunded
	}
}
