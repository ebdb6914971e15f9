package models

import (
	"time"

	"github.com/google/uuid"
)

// PromoCode is a percentage discount redeemable at checkout. Code is
// unique case-insensitively (unique index on lower(code)). CurrentUses
// never exceeds MaxUses when set; the increment is a guarded UPDATE,
// atomic with the cap check.
type PromoCode struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code            string     `gorm:"column:code;not null"`
	DiscountPercent int        `gorm:"column:discount_percent;not null"`
	Enabled         bool       `gorm:"column:enabled;not null;default:true"`
	StartsAt        *time.Time `gorm:"column:starts_at"`
	EndsAt          *time.Time `gorm:"column:ends_at"`
	MaxUses         *int       `gorm:"column:max_uses"`
	CurrentUses     int        `gorm:"column:current_uses;not null;default:0"`
	MaxUsesPerUser  *int       `gorm:"column:max_uses_per_user"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
