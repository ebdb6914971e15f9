package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cratebox/cratebox-backend/api/middleware"
	"github.com/cratebox/cratebox-backend/api/responses"
	"github.com/cratebox/cratebox-backend/api/validators"
	"github.com/cratebox/cratebox-backend/internal/pricing"
	pkgerrors "github.com/cratebox/cratebox-backend/pkg/errors"
	"github.com/cratebox/cratebox-backend/pkg/logger"
)

type priceQuoteResponse struct {
	OriginalPrice   decimal.Decimal  `json:"original_price"`
	DiscountPercent int              `json:"discount_percent"`
	FinalPrice      decimal.Decimal  `json:"final_price"`
	ResolvedCode    *string          `json:"resolved_code,omitempty"`
	Currency        string           `json:"currency"`
	DisplayPrice    *decimal.Decimal `json:"display_price,omitempty"`
	DisplayRate     *decimal.Decimal `json:"display_rate,omitempty"`
}

type redeemRequest struct {
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
}

// PricingQuote prices a box type, optionally applying a promo code and
// converting the final price into a display currency at the supplied
// rate. Stored prices stay EUR; the conversion is per-request only.
func PricingQuote(svc pricing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boxTypeID, err := validators.ParseQueryUUID(r, "box_type_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rate, err := validators.ParseQueryDecimal(r, "display_rate")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := pricing.ComputePriceInput{
			BoxTypeID: boxTypeID,
			PromoCode: strings.TrimSpace(r.URL.Query().Get("promo_code")),
		}
		if userID := middleware.UserIDFromContext(r.Context()); userID != uuid.Nil {
			input.UserID = &userID
		}

		quote, err := svc.ComputePrice(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := priceQuoteResponse{
			OriginalPrice:   quote.OriginalPrice,
			DiscountPercent: quote.DiscountPercent,
			FinalPrice:      quote.FinalPrice,
			ResolvedCode:    quote.ResolvedCode,
			Currency:        quote.Currency,
		}
		if rate != nil {
			display, err := pricing.ConvertDisplayPrice(quote.FinalPrice, *rate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			resp.DisplayPrice = &display
			resp.DisplayRate = rate
		}
		responses.WriteSuccess(w, resp)
	}
}

func promoCodeParam(r *http.Request) (string, error) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}
	return code, nil
}

// PromoValidate reports whether a code would currently apply, without
// consuming a use.
func PromoValidate(svc pricing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := promoCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var userID *uuid.UUID
		if id := middleware.UserIDFromContext(r.Context()); id != uuid.Nil {
			userID = &id
		}
		status, err := svc.ValidatePromoCode(r.Context(), code, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// PromoRedeem consumes one use of a promo code for the caller.
func PromoRedeem(svc pricing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := promoCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing identity"))
			return
		}
		var payload redeemRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		if err := svc.RedeemPromoCode(r.Context(), pricing.RedeemInput{
			Code:           code,
			UserID:         userID,
			SubscriptionID: payload.SubscriptionID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"code": code, "status": "redeemed"})
	}
}
