package ports

import (
	"context"
	"time"
)

// Processor event types the reconciliation listener acts on.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	EventPaymentFailed          = "payment_intent.payment_failed"
	EventChargeRefunded         = "charge.refunded"
)

// Metadata keys written on every checkout session and its payment intent.
const (
	MetadataOrderID     = "order_id"
	MetadataUserID      = "user_id"
	MetadataTemplateID  = "template_id"
	MetadataBundleID    = "bundle_id"
	MetadataTemplateIDs = "template_ids"
)

// CheckoutRequest describes a single-line-item hosted checkout session.
type CheckoutRequest struct {
	OrderID        string
	CustomerEmail  string
	ProductName    string
	Description    string
	AmountCents    int64
	Currency       string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// CheckoutSession is the processor's view of a checkout session.
type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	CustomerEmail   string
	Metadata        map[string]string
	CreatedAt       time.Time
}

// Paid reports whether the processor considers the session settled.
func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid"
}

// PaymentEvent is a verified webhook event reduced to the fields reconciliation needs.
type PaymentEvent struct {
	ID              string
	Type            string
	SessionID       string
	PaymentIntentID string
	OrderID         string
	PaymentStatus   string
	CustomerEmail   string
}

// PaymentGateway is the payment processor as seen by the order flow.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	// ParseEvent verifies the signature before decoding anything, returning
	// ErrSignatureInvalid on failure.
	ParseEvent(payload []byte, signature string) (*PaymentEvent, error)
	ListSessions(ctx context.Context, createdAfter time.Time, limit int) ([]CheckoutSession, error)
}
