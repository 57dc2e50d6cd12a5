package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation  = "23505"
	intentConstraint = "orders_payment_intent_id_key"
)

const orderColumns = `
	id, user_id, template_id, bundle_id, template_ids_purchased,
	checkout_session_id, payment_intent_id, amount_cents, currency,
	status, payment_status, customer_email, notes, created_at, updated_at
`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, order domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	purchased := order.TemplateIDsPurchased
	if purchased == nil {
		purchased = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		order.ID,
		order.UserID,
		nullable(order.TemplateID),
		nullable(order.BundleID),
		purchased,
		order.CheckoutSessionID,
		nullable(order.PaymentIntentID),
		order.AmountCents,
		order.Currency,
		order.Status,
		order.PaymentStatus,
		order.CustomerEmail,
		order.Notes,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == intentConstraint {
				return fmt.Errorf("insert order %s: payment intent already recorded: %w", order.ID, ports.ErrInconsistent)
			}
			return fmt.Errorf("insert order %s: %w", order.ID, ports.ErrDuplicateSession)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, "id", id)
}

func (r *Repository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	return r.getOne(ctx, "checkout_session_id", sessionID)
}

func (r *Repository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Order, error) {
	return r.getOne(ctx, "payment_intent_id", paymentIntentID)
}

func (r *Repository) getOne(ctx context.Context, column, value string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + column + ` = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order by %s: %w", column, err)
	}

	return order, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	filter = filter.Normalize()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR user_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`

	var userFilter *string
	if filter.UserID != "" {
		userFilter = &filter.UserID
	}
	var statusFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}

	rows, err := r.pool.Query(ctx, query, userFilter, statusFilter, filter.PageSize, filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	return collectOrders(rows)
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, update ports.StatusUpdate) error {
	query := `
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    payment_intent_id = COALESCE($3, payment_intent_id),
		    updated_at = $4
		WHERE id = $5 AND status = $6 AND payment_status = $7
	`

	result, err := r.pool.Exec(ctx, query,
		update.Change.Status,
		update.Change.PaymentStatus,
		nullable(update.Change.PaymentIntentID),
		time.Now().UTC(),
		id,
		update.FromStatus,
		update.FromPaymentStatus,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == intentConstraint {
			return fmt.Errorf("update order %s: payment intent already recorded: %w", id, ports.ErrInconsistent)
		}
		return fmt.Errorf("update order status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.missOrStale(ctx, id)
	}

	return nil
}

func (r *Repository) UpdateNotes(ctx context.Context, id string, notes string) error {
	query := `
		UPDATE orders
		SET notes = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.pool.Exec(ctx, query, notes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update order notes: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func (r *Repository) HasEntitlement(ctx context.Context, userID, templateID string, revokeOnRefund bool) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM orders
			WHERE user_id = $1
			  AND status = 'completed'
			  AND (template_id = $2 OR $2 = ANY(template_ids_purchased))
			  AND (NOT $3 OR payment_status <> 'refunded')
		)
	`

	var entitled bool
	if err := r.pool.QueryRow(ctx, query, userID, templateID, revokeOnRefund).Scan(&entitled); err != nil {
		return false, fmt.Errorf("check entitlement: %w", err)
	}

	return entitled, nil
}

func (r *Repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = ports.MaxPageSize
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_status = 'pending'
		  AND status IN ('pending', 'processing')
		  AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}

	return collectOrders(rows)
}

func (r *Repository) missOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order existence: %w", err)
	}
	if !exists {
		return ports.ErrNotFound
	}
	return ports.ErrStaleStatus
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order      domain.Order
		templateID *string
		bundleID   *string
		intentID   *string
	)

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&templateID,
		&bundleID,
		&order.TemplateIDsPurchased,
		&order.CheckoutSessionID,
		&intentID,
		&order.AmountCents,
		&order.Currency,
		&order.Status,
		&order.PaymentStatus,
		&order.CustomerEmail,
		&order.Notes,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.TemplateID = deref(templateID)
	order.BundleID = deref(bundleID)
	order.PaymentIntentID = deref(intentID)
	if len(order.TemplateIDsPurchased) == 0 {
		order.TemplateIDsPurchased = nil
	}

	return &order, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
