package addresses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/pkg/db/models"
	apperrors "github.com/cratebox/cratebox-backend/pkg/errors"
)

// Repository manages persistence for delivery addresses.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, address *models.Address) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Address, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]models.Address, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an address repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, address *models.Address) error {
	return r.db.WithContext(ctx).Create(address).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	var address models.Address
	if err := r.db.WithContext(ctx).First(&address, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "address not found")
		}
		return nil, err
	}
	return &address, nil
}

func (r *repository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	var rows []models.Address
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
