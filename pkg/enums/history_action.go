package enums

import "fmt"

// HistoryAction identifies the mutation recorded by a subscription history row.
type HistoryAction string

const (
	HistoryActionCreated            HistoryAction = "created"
	HistoryActionPaused             HistoryAction = "paused"
	HistoryActionResumed            HistoryAction = "resumed"
	HistoryActionCancelled          HistoryAction = "cancelled"
	HistoryActionExpired            HistoryAction = "expired"
	HistoryActionPreferencesUpdated HistoryAction = "preferences_updated"
	HistoryActionAddressChanged     HistoryAction = "address_changed"
	HistoryActionFrequencyChanged   HistoryAction = "frequency_changed"
	HistoryActionOrderGenerated     HistoryAction = "order_generated"
)

var validHistoryActions = []HistoryAction{
	HistoryActionCreated,
	HistoryActionPaused,
	HistoryActionResumed,
	HistoryActionCancelled,
	HistoryActionExpired,
	HistoryActionPreferencesUpdated,
	HistoryActionAddressChanged,
	HistoryActionFrequencyChanged,
	HistoryActionOrderGenerated,
}

// String implements fmt.Stringer.
func (a HistoryAction) String() string {
	return string(a)
}

// IsValid reports whether the value is known.
func (a HistoryAction) IsValid() bool {
	for _, candidate := range validHistoryActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseHistoryAction converts raw input into a HistoryAction.
func ParseHistoryAction(value string) (HistoryAction, error) {
	for _, candidate := range validHistoryActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid history action %q", value)
}
