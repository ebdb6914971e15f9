package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/cratebox/cratebox-backend/pkg/enums"
)

// Subscription is a recurring box subscription owned by a customer.
// Status changes flow exclusively through the lifecycle service; the
// batch generator only touches LastDeliveredCycleID. Rows are never
// hard-deleted: cancelled and expired are retained terminal states.
type Subscription struct {
	ID                   uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	BoxTypeID            uuid.UUID                   `gorm:"column:box_type_id;type:uuid;not null"`
	BoxType              *BoxType                    `gorm:"foreignKey:BoxTypeID"`
	Frequency            enums.SubscriptionFrequency `gorm:"column:frequency;type:text;not null;default:'monthly'"`
	Status               enums.SubscriptionStatus    `gorm:"column:status;type:text;not null;default:'active';index"`
	BasePrice            decimal.Decimal             `gorm:"column:base_price;type:numeric(12,2);not null"`
	DiscountPercent      int                         `gorm:"column:discount_percent;not null;default:0"`
	CurrentPrice         decimal.Decimal             `gorm:"column:current_price;type:numeric(12,2);not null"`
	PromoCode            *string                     `gorm:"column:promo_code"`
	AddressID            uuid.UUID                   `gorm:"column:address_id;type:uuid;not null"`
	SizePreference       *string                     `gorm:"column:size_preference"`
	FavoriteColors       pq.StringArray              `gorm:"column:favorite_colors;type:text[]"`
	Exclusions           pq.StringArray              `gorm:"column:exclusions;type:text[]"`
	GiftNote             *string                     `gorm:"column:gift_note"`
	StartedAt            time.Time                   `gorm:"column:started_at;not null"`
	PausedAt             *time.Time                  `gorm:"column:paused_at"`
	CancelledAt          *time.Time                  `gorm:"column:cancelled_at"`
	CancellationReason   *string                     `gorm:"column:cancellation_reason"`
	LastDeliveredCycleID *uuid.UUID                  `gorm:"column:last_delivered_cycle_id;type:uuid"`
	CreatedAt            time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
