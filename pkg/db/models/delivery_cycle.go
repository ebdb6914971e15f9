package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cratebox/cratebox-backend/pkg/enums"
)

// DeliveryCycle is a scheduled recurring fulfillment event. Immutable
// after creation except for Status.
type DeliveryCycle struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string            `gorm:"column:name;not null"`
	DeliveryDate       time.Time         `gorm:"column:delivery_date;not null;index"`
	SeasonalQualifying bool              `gorm:"column:seasonal_qualifying;not null;default:false"`
	Status             enums.CycleStatus `gorm:"column:status;type:text;not null;default:'scheduled'"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
