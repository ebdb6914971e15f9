package subscriptions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/pkg/db/models"
	"github.com/cratebox/cratebox-backend/pkg/enums"
	apperrors "github.com/cratebox/cratebox-backend/pkg/errors"
)

// Repository manages persistence for subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	// ListPage returns subscriptions ordered by id for stable batch
	// iteration, with the box type preloaded.
	ListPage(ctx context.Context, offset, limit int) ([]models.Subscription, error)
	// UpdateGuarded applies updates only while the row's status is in
	// the allowed set. Returns false when the precondition no longer
	// holds, without mutating anything.
	UpdateGuarded(ctx context.Context, id uuid.UUID, allowed []enums.SubscriptionStatus, updates map[string]any) (bool, error)
	SetLastDeliveredCycle(ctx context.Context, id, cycleID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Preload("BoxType").
		First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "subscription not found")
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListPage(ctx context.Context, offset, limit int) ([]models.Subscription, error) {
	var rows []models.Subscription
	if err := r.db.WithContext(ctx).
		Preload("BoxType").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateGuarded(ctx context.Context, id uuid.UUID, allowed []enums.SubscriptionStatus, updates map[string]any) (bool, error) {
	if len(allowed) == 0 {
		return false, errors.New("allowed statuses required")
	}
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetLastDeliveredCycle(ctx context.Context, id, cycleID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		UpdateColumn("last_delivered_cycle_id", cycleID).Error
}
