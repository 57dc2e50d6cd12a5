package domain

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice is returned when a catalog price cannot be charged.
var ErrInvalidPrice = errors.New("price must be a positive amount")

// Template is a downloadable PDF listed in the storefront.
type Template struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	Features      []string        `json:"features,omitempty"`
	IsActive      bool            `json:"is_active"`
	PDFURL        string          `json:"pdf_url"`
	ImageURL      string          `json:"image_url"`
	DownloadCount int64           `json:"download_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Bundle groups templates sold together at a discounted price.
type Bundle struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	TemplateIDs   []string        `json:"template_ids"`
	Price         decimal.Decimal `json:"bundle_price"`
	OriginalTotal decimal.Decimal `json:"original_total"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Savings is how much cheaper the bundle is than buying its templates separately.
func (b Bundle) Savings() decimal.Decimal {
	saved := b.OriginalTotal.Sub(b.Price)
	if saved.IsNegative() {
		return decimal.Zero
	}
	return saved
}

// SavingsPercent is Savings relative to the original total, rounded to a whole percent.
func (b Bundle) SavingsPercent() int64 {
	if !b.OriginalTotal.IsPositive() {
		return 0
	}
	return b.Savings().Div(b.OriginalTotal).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// MemberIDs returns a copy of the bundle's template ids.
func (b Bundle) MemberIDs() []string {
	ids := make([]string, len(b.TemplateIDs))
	copy(ids, b.TemplateIDs)
	return ids
}

// ToMinorUnits converts a major-unit price (dollars) into the smallest currency
// unit (cents), rounding half away from zero.
func ToMinorUnits(price decimal.Decimal) (int64, error) {
	cents := price.Shift(2).Round(0)
	if !cents.IsPositive() {
		return 0, ErrInvalidPrice
	}
	if cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, ErrInvalidPrice
	}
	return cents.IntPart(), nil
}

// PriceFromFloat converts a float price, rejecting NaN and infinities.
func PriceFromFloat(value float64) (decimal.Decimal, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return decimal.Zero, ErrInvalidPrice
	}
	return decimal.NewFromFloat(value), nil
}
