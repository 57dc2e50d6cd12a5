package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

type SweepPendingCommand struct {
	// OlderThan skips orders young enough that the buyer may still be paying.
	OlderThan time.Duration
	Limit     int
}

type SweepResult struct {
	Checked      int `json:"checked"`
	Settled      int `json:"settled"`
	StillPending int `json:"still_pending"`
	Errors       int `json:"errors"`
}

// SweepPendingCommandHandler pulls the live session of every stale pending
// order and applies it through the reconciler, catching webhooks that never
// arrived.
type SweepPendingCommandHandler struct {
	repo       ports.OrderRepository
	gateway    ports.PaymentGateway
	reconciler Reconciler
	logger     *slog.Logger
}

func NewSweepPendingCommandHandler(
	repo ports.OrderRepository,
	gateway ports.PaymentGateway,
	reconciler Reconciler,
	logger *slog.Logger,
) *SweepPendingCommandHandler {
	return &SweepPendingCommandHandler{
		repo:       repo,
		gateway:    gateway,
		reconciler: reconciler,
		logger:     logger,
	}
}

func (h *SweepPendingCommandHandler) Handle(ctx context.Context, cmd SweepPendingCommand) (*SweepResult, error) {
	if cmd.OlderThan < 0 {
		return nil, fmt.Errorf("%w: older-than must not be negative", ports.ErrValidation)
	}

	orders, err := h.repo.ListPendingBefore(ctx, time.Now().UTC().Add(-cmd.OlderThan), cmd.Limit)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		session, err := h.gateway.RetrieveSession(ctx, order.CheckoutSessionID)
		if err != nil {
			result.Errors++
			h.logger.WarnContext(ctx, "sweep could not retrieve session",
				"order_id", order.ID,
				"session_id", order.CheckoutSessionID,
				"error", err,
			)
			continue
		}
		if !session.Paid() {
			result.StillPending++
			continue
		}

		outcome, err := h.reconciler.Handle(ctx, ReconcileCommand{
			Source:          SourceSweep,
			Lookup:          OrderLookup{SessionID: order.CheckoutSessionID},
			Outcome:         domain.OutcomePaid,
			PaymentIntentID: session.PaymentIntentID,
		})
		if err != nil {
			result.Errors++
			h.logger.WarnContext(ctx, "sweep could not reconcile order",
				"order_id", order.ID,
				"session_id", order.CheckoutSessionID,
				"error", err,
			)
			continue
		}
		if outcome.Decision == domain.DecisionApply {
			result.Settled++
		}
	}

	return result, nil
}
