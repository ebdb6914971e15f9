package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/pkg/db/models"
	apperrors "github.com/cratebox/cratebox-backend/pkg/errors"
)

// Repository manages persistence for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ExistsForSubscriptionCycle(ctx context.Context, subscriptionID, cycleID uuid.UUID) (bool, error)
	ListBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) ([]models.Order, error)
	ListByCycleID(ctx context.Context, cycleID uuid.UUID) ([]models.Order, error)
	CountByCycleID(ctx context.Context, cycleID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ExistsForSubscriptionCycle(ctx context.Context, subscriptionID, cycleID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("subscription_id = ? AND cycle_id = ?", subscriptionID, cycleID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByCycleID(ctx context.Context, cycleID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountByCycleID(ctx context.Context, cycleID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("cycle_id = ?", cycleID).
		Count(&count).Error
	return count, err
}
