package ports

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// OrderRepository exposes persistence operations required by the application layer.
type OrderRepository interface {
	// Create inserts a new order. A second order for the same checkout
	// session fails with ErrDuplicateSession.
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*domain.Order, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	// UpdateStatus writes update.Change only while the order still has the
	// expected status pair, returning ErrStaleStatus otherwise.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
	UpdateNotes(ctx context.Context, id string, notes string) error
	// HasEntitlement reports whether userID holds a completed order covering templateID.
	HasEntitlement(ctx context.Context, userID, templateID string, revokeOnRefund bool) (bool, error)
	// ListPendingBefore returns unsettled orders created before cutoff, oldest first.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
}

// StatusUpdate is a compare-and-set status write.
type StatusUpdate struct {
	FromStatus        domain.OrderStatus
	FromPaymentStatus domain.PaymentStatus
	Change            domain.StatusChange
}

// ListFilter narrows list queries by purchaser, status and pagination.
type ListFilter struct {
	UserID   string
	Status   *domain.OrderStatus
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize applies pagination defaults and bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset is the number of rows skipped for the filter's page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
