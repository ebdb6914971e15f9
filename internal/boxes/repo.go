package boxes

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cratebox/cratebox-backend/pkg/db/models"
	apperrors "github.com/cratebox/cratebox-backend/pkg/errors"
)

// Repository manages persistence for the box catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, id uuid.UUID) (*models.BoxType, error)
	GetByCode(ctx context.Context, code string) (*models.BoxType, error)
	List(ctx context.Context, sellableOnly bool) ([]models.BoxType, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.BoxType, error) {
	var box models.BoxType
	if err := r.db.WithContext(ctx).First(&box, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "box type not found")
		}
		return nil, err
	}
	return &box, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (*models.BoxType, error) {
	var box models.BoxType
	if err := r.db.WithContext(ctx).First(&box, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "box type not found")
		}
		return nil, err
	}
	return &box, nil
}

func (r *repository) List(ctx context.Context, sellableOnly bool) ([]models.BoxType, error) {
	var boxTypes []models.BoxType
	query := r.db.WithContext(ctx)
	if sellableOnly {
		query = query.Where("sellable = ?", true)
	}
	if err := query.Order("name ASC").Find(&boxTypes).Error; err != nil {
		return nil, err
	}
	return boxTypes, nil
}
