package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CurrencyEUR is the authoritative currency for all stored prices.
const CurrencyEUR = "EUR"

// ComputePriceInput identifies the box being priced and the optional
// promo context.
type ComputePriceInput struct {
	BoxTypeID uuid.UUID
	PromoCode string
	UserID    *uuid.UUID
}

// PriceQuote is the result of a price computation. ResolvedCode is nil
// whenever the supplied code did not apply.
type PriceQuote struct {
	OriginalPrice   decimal.Decimal `json:"original_price"`
	DiscountPercent int             `json:"discount_percent"`
	FinalPrice      decimal.Decimal `json:"final_price"`
	ResolvedCode    *string         `json:"resolved_code,omitempty"`
	Currency        string          `json:"currency"`
}

// PromoStatus reports the outcome of a standalone code validation.
type PromoStatus struct {
	Code            string `json:"code"`
	Valid           bool   `json:"valid"`
	DiscountPercent int    `json:"discount_percent"`
	Reason          string `json:"reason,omitempty"`
}

// RedeemInput captures one redemption attempt.
type RedeemInput struct {
	Code           string
	UserID         uuid.UUID
	SubscriptionID *uuid.UUID
}
