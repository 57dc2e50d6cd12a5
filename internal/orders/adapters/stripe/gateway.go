package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/sony/gobreaker/v2"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Config tunes the Stripe gateway.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// CallTimeout bounds every individual API call.
	CallTimeout time.Duration
	// LookupRetries is the number of retries for read-only session lookups.
	LookupRetries        uint64
	RetryInitialInterval time.Duration
	// BreakerFailures consecutive upstream failures open the circuit for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	// Backends overrides the API endpoints; nil uses Stripe's.
	Backends *stripe.Backends
}

// Gateway is the Stripe implementation of ports.PaymentGateway.
type Gateway struct {
	api     *client.API
	cfg     Config
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

var _ ports.PaymentGateway = (*Gateway)(nil)

func NewGateway(cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 200 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, cfg.Backends)

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isUpstreamFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment processor circuit changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Gateway{api: api, cfg: cfg, breaker: breaker, logger: logger}
}

func (g *Gateway) CreateSession(ctx context.Context, req ports.CheckoutRequest) (*ports.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.ProductName),
	}
	if req.Description != "" {
		product.Description = stripe.String(req.Description)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(req.AmountCents),
				ProductData: product,
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	session, err := execute(g.breaker, func() (*stripe.CheckoutSession, error) {
		return g.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return nil, classify("create checkout session", err)
	}

	return toSession(session), nil
}

// RetrieveSession fetches the live session, retrying transient failures with
// bounded exponential backoff.
func (g *Gateway) RetrieveSession(ctx context.Context, sessionID string) (*ports.CheckoutSession, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.cfg.RetryInitialInterval
	policy.MaxElapsedTime = 0
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, g.cfg.LookupRetries), ctx)

	attempt := 0
	session, err := backoff.RetryWithData(func() (*stripe.CheckoutSession, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		defer cancel()

		params := &stripe.CheckoutSessionParams{}
		params.Context = callCtx

		session, err := execute(g.breaker, func() (*stripe.CheckoutSession, error) {
			return g.api.CheckoutSessions.Get(sessionID, params)
		})
		if err != nil && !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			g.logger.WarnContext(ctx, "retrieve checkout session failed",
				slog.String("session_id", sessionID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return session, err
	}, bounded)
	if err != nil {
		return nil, classify("retrieve checkout session", err)
	}

	return toSession(session), nil
}

// ListSessions returns up to limit sessions created at or after createdAfter, newest first.
func (g *Gateway) ListSessions(ctx context.Context, createdAfter time.Time, limit int) ([]ports.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout*3)
	defer cancel()

	params := &stripe.CheckoutSessionListParams{}
	params.Filters.AddFilter("created", "gte", strconv.FormatInt(createdAfter.Unix(), 10))
	params.Limit = stripe.Int64(100)
	params.Context = ctx

	sessions, err := execute(g.breaker, func() ([]ports.CheckoutSession, error) {
		var out []ports.CheckoutSession
		iter := g.api.CheckoutSessions.List(params)
		for iter.Next() {
			out = append(out, *toSession(iter.CheckoutSession()))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return out, iter.Err()
	})
	if err != nil {
		return nil, classify("list checkout sessions", err)
	}

	return sessions, nil
}

// ParseEvent verifies the Stripe-Signature header against the raw payload and
// extracts the identifiers reconciliation needs.
func (g *Gateway) ParseEvent(payload []byte, signature string) (*ports.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrSignatureInvalid, err)
	}

	out := &ports.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case ports.EventCheckoutCompleted, ports.EventCheckoutAsyncSucceeded, ports.EventCheckoutAsyncFailed:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: decode checkout session: %v", ports.ErrValidation, err)
		}
		s := toSession(&session)
		out.SessionID = s.ID
		out.PaymentIntentID = s.PaymentIntentID
		out.PaymentStatus = s.PaymentStatus
		out.CustomerEmail = s.CustomerEmail
		out.OrderID = s.Metadata[ports.MetadataOrderID]

	case ports.EventPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("%w: decode payment intent: %v", ports.ErrValidation, err)
		}
		out.PaymentIntentID = intent.ID
		out.OrderID = intent.Metadata[ports.MetadataOrderID]

	case ports.EventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("%w: decode charge: %v", ports.ErrValidation, err)
		}
		if charge.PaymentIntent != nil {
			out.PaymentIntentID = charge.PaymentIntent.ID
		}
		out.OrderID = charge.Metadata[ports.MetadataOrderID]
	}

	return out, nil
}

func toSession(s *stripe.CheckoutSession) *ports.CheckoutSession {
	if s == nil {
		return nil
	}
	out := &ports.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.Created > 0 {
		out.CreatedAt = time.Unix(s.Created, 0).UTC()
	}
	return out
}

func execute[T any](breaker *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	result, err := breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// isUpstreamFault reports whether err says the processor itself is unhealthy,
// as opposed to rejecting this particular request.
func isUpstreamFault(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 0 ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

func isRetryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, context.Canceled) {
		return false
	}
	return isUpstreamFault(err)
}

func classify(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ports.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, ports.ErrUpstream, err)
}
