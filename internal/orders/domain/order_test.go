package domain_test

import (
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

func validOrder() domain.Order {
	return domain.Order{
		ID:                "order-1",
		UserID:            "user-1",
		TemplateID:        "tpl-1",
		CheckoutSessionID: "cs_test_1",
		AmountCents:       1999,
		Currency:          "usd",
		Status:            domain.StatusPending,
		PaymentStatus:     domain.PaymentPending,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *domain.Order)
		wantErr bool
	}{
		{
			name:    "valid single template order",
			mutate:  func(o *domain.Order) {},
			wantErr: false,
		},
		{
			name: "valid bundle order",
			mutate: func(o *domain.Order) {
				o.TemplateID = ""
				o.BundleID = "bundle-1"
				o.TemplateIDsPurchased = []string{"tpl-1", "tpl-2"}
			},
			wantErr: false,
		},
		{
			name:    "missing user",
			mutate:  func(o *domain.Order) { o.UserID = "  " },
			wantErr: true,
		},
		{
			name:    "no target",
			mutate:  func(o *domain.Order) { o.TemplateID = "" },
			wantErr: true,
		},
		{
			name: "both targets",
			mutate: func(o *domain.Order) {
				o.BundleID = "bundle-1"
				o.TemplateIDsPurchased = []string{"tpl-1"}
			},
			wantErr: true,
		},
		{
			name:    "single order with expansion",
			mutate:  func(o *domain.Order) { o.TemplateIDsPurchased = []string{"tpl-2"} },
			wantErr: true,
		},
		{
			name: "bundle without expansion",
			mutate: func(o *domain.Order) {
				o.TemplateID = ""
				o.BundleID = "bundle-1"
			},
			wantErr: true,
		},
		{
			name:    "missing session",
			mutate:  func(o *domain.Order) { o.CheckoutSessionID = "" },
			wantErr: true,
		},
		{
			name:    "zero amount",
			mutate:  func(o *domain.Order) { o.AmountCents = 0 },
			wantErr: true,
		},
		{
			name:    "negative amount",
			mutate:  func(o *domain.Order) { o.AmountCents = -100 },
			wantErr: true,
		},
		{
			name:    "unsupported currency",
			mutate:  func(o *domain.Order) { o.Currency = "jpy" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := validOrder()
			tt.mutate(&order)
			err := order.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Order.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOrderIsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status domain.OrderStatus
		want   bool
	}{
		{"completed is terminal", domain.StatusCompleted, true},
		{"failed is terminal", domain.StatusFailed, true},
		{"cancelled is terminal", domain.StatusCancelled, true},
		{"pending is not terminal", domain.StatusPending, false},
		{"processing is not terminal", domain.StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := domain.Order{Status: tt.status}
			if got := order.IsTerminal(); got != tt.want {
				t.Errorf("Order.IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderEntitles(t *testing.T) {
	bundle := validOrder()
	bundle.TemplateID = ""
	bundle.BundleID = "bundle-1"
	bundle.TemplateIDsPurchased = []string{"tpl-a", "tpl-b", "tpl-c"}

	tests := []struct {
		name           string
		order          domain.Order
		status         domain.OrderStatus
		payment        domain.PaymentStatus
		templateID     string
		revokeOnRefund bool
		want           bool
	}{
		{"completed single order", validOrder(), domain.StatusCompleted, domain.PaymentPaid, "tpl-1", false, true},
		{"completed single order other template", validOrder(), domain.StatusCompleted, domain.PaymentPaid, "tpl-2", false, false},
		{"pending order", validOrder(), domain.StatusPending, domain.PaymentPending, "tpl-1", false, false},
		{"failed order", validOrder(), domain.StatusFailed, domain.PaymentFailed, "tpl-1", false, false},
		{"completed bundle member", bundle, domain.StatusCompleted, domain.PaymentPaid, "tpl-b", false, true},
		{"completed bundle non member", bundle, domain.StatusCompleted, domain.PaymentPaid, "tpl-z", false, false},
		{"refunded keeps access by default", validOrder(), domain.StatusCompleted, domain.PaymentRefunded, "tpl-1", false, true},
		{"refunded revoked when configured", validOrder(), domain.StatusCompleted, domain.PaymentRefunded, "tpl-1", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := tt.order
			order.Status = tt.status
			order.PaymentStatus = tt.payment
			if got := order.Entitles(tt.templateID, tt.revokeOnRefund); got != tt.want {
				t.Errorf("Order.Entitles(%q) = %v, want %v", tt.templateID, got, tt.want)
			}
		})
	}
}
