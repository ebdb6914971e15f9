package enums

import "fmt"

// CycleStatus is the only mutable attribute of a delivery cycle.
type CycleStatus string

const (
	CycleStatusScheduled CycleStatus = "scheduled"
	CycleStatusProcessed CycleStatus = "processed"
	CycleStatusClosed    CycleStatus = "closed"
)

var validCycleStatuses = []CycleStatus{
	CycleStatusScheduled,
	CycleStatusProcessed,
	CycleStatusClosed,
}

// String implements fmt.Stringer.
func (s CycleStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s CycleStatus) IsValid() bool {
	for _, candidate := range validCycleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCycleStatus converts raw input into a CycleStatus.
func ParseCycleStatus(value string) (CycleStatus, error) {
	for _, candidate := range validCycleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cycle status %q", value)
}
