package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ObservableRepository traces and times every order ledger call.
type ObservableRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

var _ ports.OrderRepository = (*ObservableRepository)(nil)

func NewObservableRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{repo: repo, metrics: metrics}
}

func (r *ObservableRepository) observe(ctx context.Context, operation string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository."+operation)
	telemetry.AddSpanAttributes(span, append(attrs, attribute.String("operation", operation))...)

	start := time.Now()
	err := fn(ctx)
	if r.metrics != nil {
		r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds(), err)
	}

	// Misses and lost compare-and-set races are expected outcomes, not faults.
	if errors.Is(err, ports.ErrNotFound) || errors.Is(err, ports.ErrStaleStatus) {
		telemetry.AddSpanEvent(span, err.Error())
		telemetry.EndSpan(span, nil)
		return err
	}
	telemetry.EndSpan(span, err)
	return err
}

func (r *ObservableRepository) Create(ctx context.Context, order domain.Order) error {
	return r.observe(ctx, "create_order", []attribute.KeyValue{
		attribute.String("order.id", order.ID),
		attribute.String("checkout.session_id", order.CheckoutSessionID),
	}, func(ctx context.Context) error {
		return r.repo.Create(ctx, order)
	})
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var order *domain.Order
	err := r.observe(ctx, "get_order_by_id", []attribute.KeyValue{attribute.String("order.id", id)},
		func(ctx context.Context) (err error) {
			order, err = r.repo.GetByID(ctx, id)
			return err
		})
	return order, err
}

func (r *ObservableRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	var order *domain.Order
	err := r.observe(ctx, "get_order_by_session", []attribute.KeyValue{attribute.String("checkout.session_id", sessionID)},
		func(ctx context.Context) (err error) {
			order, err = r.repo.GetBySessionID(ctx, sessionID)
			return err
		})
	return order, err
}

func (r *ObservableRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Order, error) {
	var order *domain.Order
	err := r.observe(ctx, "get_order_by_payment_intent", []attribute.KeyValue{attribute.String("payment.intent_id", paymentIntentID)},
		func(ctx context.Context) (err error) {
			order, err = r.repo.GetByPaymentIntentID(ctx, paymentIntentID)
			return err
		})
	return order, err
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}
	if filter.UserID != "" {
		attrs = append(attrs, attribute.Bool("filter.user", true))
	}

	var orders []domain.Order
	err := r.observe(ctx, "list_orders", attrs, func(ctx context.Context) (err error) {
		orders, err = r.repo.List(ctx, filter)
		return err
	})
	return orders, err
}

func (r *ObservableRepository) UpdateStatus(ctx context.Context, id string, update ports.StatusUpdate) error {
	return r.observe(ctx, "update_order_status", []attribute.KeyValue{
		attribute.String("order.id", id),
		attribute.String("order.from_status", string(update.FromStatus)),
		attribute.String("order.new_status", string(update.Change.Status)),
		attribute.String("order.new_payment_status", string(update.Change.PaymentStatus)),
	}, func(ctx context.Context) error {
		return r.repo.UpdateStatus(ctx, id, update)
	})
}

func (r *ObservableRepository) UpdateNotes(ctx context.Context, id string, notes string) error {
	return r.observe(ctx, "update_order_notes", []attribute.KeyValue{attribute.String("order.id", id)},
		func(ctx context.Context) error {
			return r.repo.UpdateNotes(ctx, id, notes)
		})
}

func (r *ObservableRepository) HasEntitlement(ctx context.Context, userID, templateID string, revokeOnRefund bool) (bool, error) {
	var entitled bool
	err := r.observe(ctx, "check_entitlement", []attribute.KeyValue{attribute.String("template.id", templateID)},
		func(ctx context.Context) (err error) {
			entitled, err = r.repo.HasEntitlement(ctx, userID, templateID, revokeOnRefund)
			return err
		})
	return entitled, err
}

func (r *ObservableRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.observe(ctx, "list_pending_orders", []attribute.KeyValue{attribute.Int("limit", limit)},
		func(ctx context.Context) (err error) {
			orders, err = r.repo.ListPendingBefore(ctx, cutoff, limit)
			return err
		})
	return orders, err
}
