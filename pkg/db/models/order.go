package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cratebox/cratebox-backend/pkg/enums"
)

// Order is one box shipment owed for a (subscription, cycle) pair. The
// partial unique index ux_orders_subscription_cycle enforces at most
// one order per pair and is the idempotency guarantee for the batch
// generator. SubscriptionID is nullable for one-off gift orders.
type Order struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID *uuid.UUID        `gorm:"column:subscription_id;type:uuid;index"`
	CycleID        uuid.UUID         `gorm:"column:cycle_id;type:uuid;not null;index"`
	BoxTypeID      uuid.UUID         `gorm:"column:box_type_id;type:uuid;not null"`
	FinalPrice     decimal.Decimal   `gorm:"column:final_price;type:numeric(12,2);not null"`
	PromoCode      *string           `gorm:"column:promo_code"`
	Status         enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
