package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/pkg/db/models"
)

// Repository manages persistence for promo codes and redemptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	CountRedemptionsByUser(ctx context.Context, promoCodeID, userID uuid.UUID) (int64, error)
	// IncrementUsage bumps current_uses atomically with the global cap
	// check. Returns false when the cap is already reached.
	IncrementUsage(ctx context.Context, promoCodeID uuid.UUID) (bool, error)
	CreateRedemption(ctx context.Context, redemption *models.PromoRedemption) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a promo repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// GetByCode matches case-insensitively. A missing code returns (nil, nil)
// because absence is an expected outcome, not an error.
func (r *repository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.db.WithContext(ctx).
		Where("lower(code) = lower(?)", code).
		First(&promo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

func (r *repository) CountRedemptionsByUser(ctx context.Context, promoCodeID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PromoRedemption{}).
		Where("promo_code_id = ? AND user_id = ?", promoCodeID, userID).
		Count(&count).Error
	return count, err
}

func (r *repository) IncrementUsage(ctx context.Context, promoCodeID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PromoCode{}).
		Where("id = ? AND (max_uses IS NULL OR current_uses < max_uses)", promoCodeID).
		UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CreateRedemption(ctx context.Context, redemption *models.PromoRedemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}
