package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BoxType is a sellable box variant in the catalog. Prices are
// authoritative in EUR.
type BoxType struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code        string          `gorm:"column:code;not null;unique"`
	Name        string          `gorm:"column:name;not null"`
	Description *string         `gorm:"column:description"`
	BasePrice   decimal.Decimal `gorm:"column:base_price;type:numeric(12,2);not null"`
	Sellable    bool            `gorm:"column:sellable;not null;default:true"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
