package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cratebox/cratebox-backend/pkg/enums"
)

// SubscriptionHistory is an append-only audit row. Details carries a
// structured before/after snapshot sufficient to reconstruct the
// change. Rows are never updated or deleted.
type SubscriptionHistory struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index:idx_subscription_history_sub_created"`
	Action         enums.HistoryAction `gorm:"column:action;type:text;not null"`
	PerformedBy    uuid.UUID           `gorm:"column:performed_by;type:uuid;not null"`
	ActorRole      enums.ActorRole     `gorm:"column:actor_role;type:text;not null"`
	Details        json.RawMessage     `gorm:"column:details;type:jsonb"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime;index:idx_subscription_history_sub_created"`
}

// TableName maps the model to the singular table created by the
// migrations, overriding gorm's default pluralization.
func (SubscriptionHistory) TableName() string {
	return "subscription_history"
}
