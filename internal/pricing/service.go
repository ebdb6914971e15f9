package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/internal/boxes"
	"github.com/cratebox/cratebox-backend/pkg/db/models"
	apperrors "github.com/cratebox/cratebox-backend/pkg/errors"
)

// Reasons a supplied promo code fails to apply. Informational only:
// price computation silently degrades to zero discount.
const (
	promoReasonUnknown      = "code unknown or disabled"
	promoReasonNotStarted   = "code not active yet"
	promoReasonEnded        = "code expired"
	promoReasonGlobalCap    = "usage cap reached"
	promoReasonPerUserCap   = "per-user usage cap reached"
	promoReasonCodeTooShort = "code is required"
)

var oneHundred = decimal.NewFromInt(100)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service resolves prices and promo codes. Price computation is a pure
// query; usage accounting happens only through RedeemPromoCode.
type Service interface {
	ComputePrice(ctx context.Context, input ComputePriceInput) (*PriceQuote, error)
	ComputePriceForBox(ctx context.Context, box *models.BoxType, promoCode string, userID *uuid.UUID) (*PriceQuote, error)
	ValidatePromoCode(ctx context.Context, code string, userID *uuid.UUID) (*PromoStatus, error)
	RedeemPromoCode(ctx context.Context, input RedeemInput) error
}

type service struct {
	boxRepo   boxes.Repository
	promoRepo Repository
	tx        TxRunner
	now       func() time.Time
}

// NewService wires a pricing service with its repositories. The tx
// runner may be nil when redemption is not needed (read-only callers).
func NewService(boxRepo boxes.Repository, promoRepo Repository, tx TxRunner) (Service, error) {
	if boxRepo == nil {
		return nil, fmt.Errorf("box repository required")
	}
	if promoRepo == nil {
		return nil, fmt.Errorf("promo repository required")
	}
	return &service{
		boxRepo:   boxRepo,
		promoRepo: promoRepo,
		tx:        tx,
		now:       time.Now,
	}, nil
}

func (s *service) ComputePrice(ctx context.Context, input ComputePriceInput) (*PriceQuote, error) {
	if input.BoxTypeID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "box type id is required")
	}
	box, err := s.boxRepo.GetByID(ctx, input.BoxTypeID)
	if err != nil {
		return nil, err
	}
	return s.ComputePriceForBox(ctx, box, input.PromoCode, input.UserID)
}

// ComputePriceForBox prices an already-loaded box type. Used by the
// batch generator, which has the catalog row in hand.
func (s *service) ComputePriceForBox(ctx context.Context, box *models.BoxType, promoCode string, userID *uuid.UUID) (*PriceQuote, error) {
	if box == nil {
		return nil, apperrors.New(apperrors.CodeValidation, "box type is required")
	}

	quote := &PriceQuote{
		OriginalPrice:   box.BasePrice,
		DiscountPercent: 0,
		FinalPrice:      box.BasePrice.Round(2),
		Currency:        CurrencyEUR,
	}

	promo, _, err := s.resolvePromo(ctx, promoCode, userID)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return quote, nil
	}

	quote.DiscountPercent = promo.DiscountPercent
	quote.FinalPrice = applyDiscount(box.BasePrice, promo.DiscountPercent)
	code := promo.Code
	quote.ResolvedCode = &code
	return quote, nil
}

func (s *service) ValidatePromoCode(ctx context.Context, code string, userID *uuid.UUID) (*PromoStatus, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return &PromoStatus{Code: code, Valid: false, Reason: promoReasonCodeTooShort}, nil
	}

	promo, reason, err := s.resolvePromo(ctx, trimmed, userID)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return &PromoStatus{Code: trimmed, Valid: false, Reason: reason}, nil
	}
	return &PromoStatus{
		Code:            promo.Code,
		Valid:           true,
		DiscountPercent: promo.DiscountPercent,
	}, nil
}

// RedeemPromoCode accounts one redemption: the guarded usage increment
// and the per-user redemption row commit together. Callers invoke this
// only after the dependent write (order, subscription) has durably
// persisted.
func (s *service) RedeemPromoCode(ctx context.Context, input RedeemInput) error {
	if s.tx == nil {
		return apperrors.New(apperrors.CodeInternal, "transaction runner not configured")
	}
	if input.UserID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	trimmed := strings.TrimSpace(input.Code)
	if trimmed == "" {
		return apperrors.New(apperrors.CodeValidation, "promo code is required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.promoRepo.WithTx(tx)

		promo, err := repo.GetByCode(ctx, trimmed)
		if err != nil {
			return err
		}
		if promo == nil || !promo.Enabled {
			return apperrors.New(apperrors.CodePromoInvalid, promoReasonUnknown)
		}
		if reason := s.checkWindow(promo); reason != "" {
			return apperrors.New(apperrors.CodePromoInvalid, reason)
		}

		incremented, err := repo.IncrementUsage(ctx, promo.ID)
		if err != nil {
			return err
		}
		if !incremented {
			return apperrors.New(apperrors.CodePromoInvalid, promoReasonGlobalCap)
		}

		// Counted after the guarded increment: the UPDATE holds the promo
		// row lock, so a concurrent redeem for the same user commits its
		// redemption row before this count runs. Failing here rolls the
		// increment back with the rest of the transaction.
		if promo.MaxUsesPerUser != nil {
			used, err := repo.CountRedemptionsByUser(ctx, promo.ID, input.UserID)
			if err != nil {
				return err
			}
			if used >= int64(*promo.MaxUsesPerUser) {
				return apperrors.New(apperrors.CodePromoInvalid, promoReasonPerUserCap)
			}
		}

		return repo.CreateRedemption(ctx, &models.PromoRedemption{
			PromoCodeID:    promo.ID,
			UserID:         input.UserID,
			SubscriptionID: input.SubscriptionID,
		})
	})
}

// resolvePromo runs the ordered validation checks. A nil promo with a
// reason means the code does not apply; only infrastructure failures
// return an error.
func (s *service) resolvePromo(ctx context.Context, code string, userID *uuid.UUID) (*models.PromoCode, string, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, promoReasonCodeTooShort, nil
	}

	promo, err := s.promoRepo.GetByCode(ctx, trimmed)
	if err != nil {
		return nil, "", err
	}
	if promo == nil || !promo.Enabled {
		return nil, promoReasonUnknown, nil
	}
	if reason := s.checkWindow(promo); reason != "" {
		return nil, reason, nil
	}
	if promo.MaxUses != nil && promo.CurrentUses >= *promo.MaxUses {
		return nil, promoReasonGlobalCap, nil
	}
	if userID != nil && promo.MaxUsesPerUser != nil {
		used, err := s.promoRepo.CountRedemptionsByUser(ctx, promo.ID, *userID)
		if err != nil {
			return nil, "", err
		}
		if used >= int64(*promo.MaxUsesPerUser) {
			return nil, promoReasonPerUserCap, nil
		}
	}
	return promo, "", nil
}

func (s *service) checkWindow(promo *models.PromoCode) string {
	now := s.now()
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return promoReasonNotStarted
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return promoReasonEnded
	}
	return ""
}

// applyDiscount computes round(price × (1 − percent/100), 2dp).
func applyDiscount(price decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		return price.Round(2)
	}
	if percent >= 100 {
		return decimal.Zero.Round(2)
	}
	factor := oneHundred.Sub(decimal.NewFromInt(int64(percent)))
	return price.Mul(factor).Div(oneHundred).Round(2)
}

// ConvertDisplayPrice converts an authoritative EUR amount into a
// display currency using an externally supplied rate. Rounding to two
// decimals happens after conversion, never before.
func ConvertDisplayPrice(amount decimal.Decimal, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, apperrors.New(apperrors.CodeValidation, "display rate must be positive")
	}
	return amount.Mul(rate).Round(2), nil
}
