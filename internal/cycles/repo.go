package cycles

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/pkg/db/models"
	"github.com/cratebox/cratebox-backend/pkg/enums"
	apperrors "github.com/cratebox/cratebox-backend/pkg/errors"
)

// Repository manages persistence for delivery cycles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, cycle *models.DeliveryCycle) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DeliveryCycle, error)
	ListUpcoming(ctx context.Context, from time.Time, limit int) ([]models.DeliveryCycle, error)
	// ListDueScheduled returns scheduled cycles whose delivery date falls
	// on or before the given instant, oldest first.
	ListDueScheduled(ctx context.Context, by time.Time, limit int) ([]models.DeliveryCycle, error)
	// UpdateStatusGuarded moves the cycle between states only when the
	// current status matches, mirroring the subscription guard.
	UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.CycleStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cycle repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, cycle *models.DeliveryCycle) error {
	return r.db.WithContext(ctx).Create(cycle).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.DeliveryCycle, error) {
	var cycle models.DeliveryCycle
	if err := r.db.WithContext(ctx).First(&cycle, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "delivery cycle not found")
		}
		return nil, err
	}
	return &cycle, nil
}

func (r *repository) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]models.DeliveryCycle, error) {
	var rows []models.DeliveryCycle
	if err := r.db.WithContext(ctx).
		Where("delivery_date >= ?", from).
		Order("delivery_date ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListDueScheduled(ctx context.Context, by time.Time, limit int) ([]models.DeliveryCycle, error) {
	var rows []models.DeliveryCycle
	if err := r.db.WithContext(ctx).
		Where("status = ? AND delivery_date <= ?", enums.CycleStatusScheduled, by).
		Order("delivery_date ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.CycleStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DeliveryCycle{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumn("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
