package subscriptions

import (
	"github.com/google/uuid"

	"github.com/cratebox/cratebox-backend/pkg/enums"
)

// Actor identifies who requested a transition. Customers may only
// mutate their own subscriptions; admin and system actors bypass the
// ownership check.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// TransitionInput covers pause, resume, and expire.
type TransitionInput struct {
	SubscriptionID uuid.UUID
	Actor          Actor
}

// CancelInput requires a human-readable reason between 1 and 1000 characters.
type CancelInput struct {
	SubscriptionID uuid.UUID
	Actor          Actor
	Reason         string
}

// Preferences is the full personalization payload. Updates replace the
// stored fields wholesale; absent optional fields clear their columns.
type Preferences struct {
	SizePreference *string  `json:"size_preference" validate:"omitempty,max=50"`
	FavoriteColors []string `json:"favorite_colors" validate:"omitempty,max=20,dive,min=1,max=50"`
	Exclusions     []string `json:"exclusions" validate:"omitempty,max=50,dive,min=1,max=100"`
	GiftNote       *string  `json:"gift_note" validate:"omitempty,max=500"`
}

// UpdatePreferencesInput replaces the personalization fields.
type UpdatePreferencesInput struct {
	SubscriptionID uuid.UUID
	Actor          Actor
	Preferences    Preferences
}

// UpdateAddressInput points the subscription at another address owned
// by the same user.
type UpdateAddressInput struct {
	SubscriptionID uuid.UUID
	Actor          Actor
	AddressID      uuid.UUID
}

// UpdateFrequencyInput changes the delivery cadence.
type UpdateFrequencyInput struct {
	SubscriptionID uuid.UUID
	Actor          Actor
	Frequency      enums.SubscriptionFrequency
}
