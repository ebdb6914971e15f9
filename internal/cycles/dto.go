package cycles

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionError records one failed unit of work inside a batch run.
type SubscriptionError struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Message        string    `json:"message"`
}

// Report summarizes one batch run over a delivery cycle.
type Report struct {
	CycleID   uuid.UUID           `json:"cycle_id"`
	Generated int                 `json:"generated"`
	Skipped   int                 `json:"skipped"`
	Excluded  int                 `json:"excluded"`
	Errors    []SubscriptionError `json:"errors"`
}

// CreateCycleInput describes a new delivery cycle.
type CreateCycleInput struct {
	Name               string    `json:"name" validate:"required,min=1,max=120"`
	DeliveryDate       time.Time `json:"delivery_date" validate:"required"`
	SeasonalQualifying bool      `json:"seasonal_qualifying"`
}
