package queries

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

// FindOrphanSessionsQuery looks for processor sessions opened by this
// storefront that have no order row.
type FindOrphanSessionsQuery struct {
	Since time.Time
	Limit int
}

type FindOrphanSessionsQueryHandler struct {
	repo    ports.OrderRepository
	gateway ports.PaymentGateway
}

func NewFindOrphanSessionsQueryHandler(repo ports.OrderRepository, gateway ports.PaymentGateway) *FindOrphanSessionsQueryHandler {
	return &FindOrphanSessionsQueryHandler{repo: repo, gateway: gateway}
}

func (h *FindOrphanSessionsQueryHandler) Handle(ctx context.Context, query FindOrphanSessionsQuery) ([]ports.CheckoutSession, error) {
	sessions, err := h.gateway.ListSessions(ctx, query.Since, query.Limit)
	if err != nil {
		return nil, err
	}

	orphans := []ports.CheckoutSession{}
	for _, session := range sessions {
		// Sessions without our metadata belong to some other integration on the account.
		if session.Metadata[ports.MetadataOrderID] == "" {
			continue
		}
		_, err := h.repo.GetBySessionID(ctx, session.ID)
		if errors.Is(err, ports.ErrNotFound) {
			orphans = append(orphans, session)
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	return orphans, nil
}
