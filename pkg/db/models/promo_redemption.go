package models

import (
	"time"

	"github.com/google/uuid"
)

// PromoRedemption records one successful redemption of a promo code by
// a user, backing the per-user usage cap.
type PromoRedemption struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PromoCodeID    uuid.UUID  `gorm:"column:promo_code_id;type:uuid;not null;index"`
	UserID         uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID *uuid.UUID `gorm:"column:subscription_id;type:uuid"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
