package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/dejobratic/storefront/internal/auth"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// MaxNotesLength caps admin notes on an order, in characters.
const MaxNotesLength = 2000

type CancelOrderCommand struct {
	Caller  *auth.Identity
	OrderID string
}

type UpdateNotesCommand struct {
	Caller  *auth.Identity
	OrderID string
	Notes   string
}

// ManageOrderCommandHandler runs the administrative order operations.
type ManageOrderCommandHandler struct {
	repo   ports.OrderRepository
	events ports.EventBus
	logger *slog.Logger
}

func NewManageOrderCommandHandler(repo ports.OrderRepository, events ports.EventBus, logger *slog.Logger) *ManageOrderCommandHandler {
	return &ManageOrderCommandHandler{repo: repo, events: events, logger: logger}
}

func (h *ManageOrderCommandHandler) Cancel(ctx context.Context, cmd CancelOrderCommand) (*domain.Order, error) {
	if err := requireAdmin(cmd.Caller); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		order, err := h.repo.GetByID(ctx, cmd.OrderID)
		if err != nil {
			return nil, err
		}

		change, ok := order.Cancel()
		if !ok {
			return nil, fmt.Errorf("%w: order in status %s/%s cannot be cancelled",
				ports.ErrValidation, order.Status, order.PaymentStatus)
		}

		err = h.repo.UpdateStatus(ctx, order.ID, ports.StatusUpdate{
			FromStatus:        order.Status,
			FromPaymentStatus: order.PaymentStatus,
			Change:            change,
		})
		if err == nil {
			updated := order.With(change)
			updated.UpdatedAt = time.Now().UTC()
			publish(ctx, h.events, h.logger, ports.EventOrderCancelled, updated)
			h.logger.InfoContext(ctx, "order cancelled",
				"order_id", updated.ID,
				"admin_id", cmd.Caller.UserID,
			)
			return &updated, nil
		}
		if !errors.Is(err, ports.ErrStaleStatus) || attempt == maxTransitionAttempts {
			return nil, fmt.Errorf("cancel order %s: %w", order.ID, err)
		}
	}
}

func (h *ManageOrderCommandHandler) UpdateNotes(ctx context.Context, cmd UpdateNotesCommand) (*domain.Order, error) {
	if err := requireAdmin(cmd.Caller); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(cmd.Notes) > MaxNotesLength {
		return nil, fmt.Errorf("%w: notes exceed %d characters", ports.ErrValidation, MaxNotesLength)
	}

	if err := h.repo.UpdateNotes(ctx, cmd.OrderID, cmd.Notes); err != nil {
		return nil, err
	}

	return h.repo.GetByID(ctx, cmd.OrderID)
}

func requireAdmin(caller *auth.Identity) error {
	if caller == nil {
		return ports.ErrUnauthenticated
	}
	if !caller.IsAdmin() {
		return ports.ErrUnauthorized
	}
	return nil
}
