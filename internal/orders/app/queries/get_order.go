package queries

import (
	"context"
	"fmt"
	"strings"

	"github.com/dejobratic/storefront/internal/auth"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// GetOrderQuery represents a request to retrieve an order by its ID.
type GetOrderQuery struct {
	Caller  *auth.Identity
	OrderID string
}

// GetOrderQueryHandler returns an order to its purchaser or an admin.
type GetOrderQueryHandler struct {
	repo ports.OrderRepository
}

// NewGetOrderQueryHandler constructs a GetOrderQueryHandler.
func NewGetOrderQueryHandler(repo ports.OrderRepository) *GetOrderQueryHandler {
	return &GetOrderQueryHandler{repo: repo}
}

// Handle executes the query and retrieves the order.
func (h *GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*domain.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	order, err := h.repo.GetByID(ctx, query.OrderID)
	if err != nil {
		return nil, err
	}

	if !query.Caller.CanAccess(order.UserID) {
		return nil, ports.ErrUnauthorized
	}

	return order, nil
}

// Validate ensures the query has valid parameters.
func (q GetOrderQuery) Validate() error {
	if q.Caller == nil {
		return ports.ErrUnauthenticated
	}
	if strings.TrimSpace(q.OrderID) == "" {
		return fmt.Errorf("%w: order_id is required", ports.ErrValidation)
	}
	return nil
}
