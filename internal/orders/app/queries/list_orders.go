package queries

import (
	"context"
	"fmt"

	"github.com/dejobratic/storefront/internal/auth"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// ListOrdersQuery lists orders. Buyers always see only their own orders;
// admins see everything or filter by purchaser.
type ListOrdersQuery struct {
	Caller *auth.Identity
	Filter ports.ListFilter
}

type OrderPage struct {
	Orders   []domain.Order `json:"orders"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) (*OrderPage, error) {
	if query.Caller == nil {
		return nil, ports.ErrUnauthenticated
	}

	filter := query.Filter.Normalize()
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ports.ErrValidation, *filter.Status)
	}
	if !query.Caller.IsAdmin() {
		filter.UserID = query.Caller.UserID
	}

	orders, err := h.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &OrderPage{Orders: orders, Page: filter.Page, PageSize: filter.PageSize}, nil
}
