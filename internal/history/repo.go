package history

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/pkg/db/models"
)

// Repository manages persistence for subscription history entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.SubscriptionHistory) error
	ListBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionHistory, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a history repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.SubscriptionHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionHistory, error) {
	var entries []models.SubscriptionHistory
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
