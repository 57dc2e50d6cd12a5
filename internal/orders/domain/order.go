package domain

import (
	"errors"
	"strings"
	"time"
)

// OrderStatus captures the fulfilment lifecycle of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusFailed     OrderStatus = "failed"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// PaymentStatus captures the money-movement lifecycle of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var supportedCurrencies = map[string]struct{}{
	"usd": {},
	"eur": {},
	"gbp": {},
	"cad": {},
}

// Order is the durable record of one checkout session and its outcome.
type Order struct {
	ID                   string        `json:"id"`
	UserID               string        `json:"user_id"`
	TemplateID           string        `json:"template_id,omitempty"`
	BundleID             string        `json:"bundle_id,omitempty"`
	TemplateIDsPurchased []string      `json:"template_ids_purchased,omitempty"`
	CheckoutSessionID    string        `json:"checkout_session_id"`
	PaymentIntentID      string        `json:"payment_intent_id,omitempty"`
	AmountCents          int64         `json:"amount_cents"`
	Currency             string        `json:"currency"`
	Status               OrderStatus   `json:"status"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	CustomerEmail        string        `json:"customer_email,omitempty"`
	Notes                string        `json:"notes,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Validate ensures the order adheres to business constraints.
func (o Order) Validate() error {
	if strings.TrimSpace(o.UserID) == "" {
		return errors.New("user_id is required")
	}
	single := o.TemplateID != ""
	bundle := o.BundleID != ""
	if single == bundle {
		return errors.New("exactly one of template_id or bundle_id is required")
	}
	if single && len(o.TemplateIDsPurchased) > 0 {
		return errors.New("template_ids_purchased is only valid for bundle orders")
	}
	if bundle && len(o.TemplateIDsPurchased) == 0 {
		return errors.New("bundle orders must list purchased templates")
	}
	if strings.TrimSpace(o.CheckoutSessionID) == "" {
		return errors.New("checkout_session_id is required")
	}
	if o.AmountCents <= 0 {
		return errors.New("amount_cents must be positive")
	}
	if _, ok := supportedCurrencies[o.Currency]; !ok {
		return errors.New("currency is not supported")
	}
	return nil
}

// IsTerminal indicates whether the order is in a terminal state.
func (o Order) IsTerminal() bool {
	switch o.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsBundle reports whether the order was placed for a bundle.
func (o Order) IsBundle() bool {
	return o.BundleID != ""
}

// Covers reports whether the order grants the given template, either directly
// or through the expansion frozen at purchase time.
func (o Order) Covers(templateID string) bool {
	if o.TemplateID == templateID {
		return true
	}
	for _, id := range o.TemplateIDsPurchased {
		if id == templateID {
			return true
		}
	}
	return false
}

// Entitles reports whether the order lets its purchaser download templateID.
func (o Order) Entitles(templateID string, revokeOnRefund bool) bool {
	if o.Status != StatusCompleted {
		return false
	}
	if revokeOnRefund && o.PaymentStatus == PaymentRefunded {
		return false
	}
	return o.Covers(templateID)
}

// IsSupportedCurrency reports whether orders may be priced in currency.
func IsSupportedCurrency(currency string) bool {
	_, ok := supportedCurrencies[currency]
	return ok
}
