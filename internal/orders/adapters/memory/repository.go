package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// Repository provides an in-memory order ledger for local development and tests.
// It enforces the same uniqueness and guarded-write rules as the Postgres one.
type Repository struct {
	mu        sync.RWMutex
	orders    map[string]domain.Order
	bySession map[string]string
	byIntent  map[string]string
}

// NewRepository constructs a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		orders:    make(map[string]domain.Order),
		bySession: make(map[string]string),
		byIntent:  make(map[string]string),
	}
}

func (r *Repository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySession[order.CheckoutSessionID]; exists {
		return ports.ErrDuplicateSession
	}
	if _, exists := r.orders[order.ID]; exists {
		return ports.ErrDuplicateSession
	}

	order.TemplateIDsPurchased = cloneIDs(order.TemplateIDsPurchased)
	r.orders[order.ID] = order
	r.bySession[order.CheckoutSessionID] = order.ID
	if order.PaymentIntentID != "" {
		r.byIntent[order.PaymentIntentID] = order.ID
	}
	return nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

func (r *Repository) GetBySessionID(_ context.Context, sessionID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return r.lookup(id)
}

func (r *Repository) GetByPaymentIntentID(_ context.Context, paymentIntentID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byIntent[paymentIntentID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return r.lookup(id)
}

// List returns orders newest first. Pagination is 1-based.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter = filter.Normalize()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	start := filter.Offset()
	if start >= len(result) {
		return []domain.Order{}, nil
	}
	end := start + filter.PageSize
	if end > len(result) {
		end = len(result)
	}

	page := make([]domain.Order, end-start)
	for i, order := range result[start:end] {
		order.TemplateIDsPurchased = cloneIDs(order.TemplateIDsPurchased)
		page[i] = order
	}
	return page, nil
}

func (r *Repository) UpdateStatus(_ context.Context, id string, update ports.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return ports.ErrNotFound
	}
	if order.Status != update.FromStatus || order.PaymentStatus != update.FromPaymentStatus {
		return ports.ErrStaleStatus
	}

	intent := update.Change.PaymentIntentID
	if intent != "" && intent != order.PaymentIntentID {
		if owner, taken := r.byIntent[intent]; taken && owner != id {
			return fmt.Errorf("update order %s: payment intent already recorded: %w", id, ports.ErrInconsistent)
		}
		r.byIntent[intent] = id
	}

	order = order.With(update.Change)
	order.UpdatedAt = time.Now().UTC()
	r.orders[id] = order
	return nil
}

func (r *Repository) UpdateNotes(_ context.Context, id string, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return ports.ErrNotFound
	}
	order.Notes = notes
	order.UpdatedAt = time.Now().UTC()
	r.orders[id] = order
	return nil
}

func (r *Repository) HasEntitlement(_ context.Context, userID, templateID string, revokeOnRefund bool) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if order.UserID == userID && order.Entitles(templateID, revokeOnRefund) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if order.PaymentStatus != domain.PaymentPending || order.IsTerminal() {
			continue
		}
		if !order.CreatedAt.Before(cutoff) {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *Repository) lookup(id string) (*domain.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	order.TemplateIDsPurchased = cloneIDs(order.TemplateIDsPurchased)
	return &order, nil
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
