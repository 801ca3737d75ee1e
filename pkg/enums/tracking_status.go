package enums

import "fmt"

// TrackingStatus is the fulfillment state of an order.
type TrackingStatus string

const (
	TrackingStatusPreparation TrackingStatus = "preparation"
	TrackingStatusReady       TrackingStatus = "ready"
	TrackingStatusDelivered   TrackingStatus = "delivered"
	TrackingStatusCancelled   TrackingStatus = "cancelled"
)

var validTrackingStatuses = []TrackingStatus{
	TrackingStatusPreparation,
	TrackingStatusReady,
	TrackingStatusDelivered,
	TrackingStatusCancelled,
}

// String implements fmt.Stringer.
func (s TrackingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TrackingStatus.
func (s TrackingStatus) IsValid() bool {
	for _, candidate := range validTrackingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status change is accepted.
func (s TrackingStatus) IsTerminal() bool {
	return s == TrackingStatusDelivered || s == TrackingStatusCancelled
}

// ParseTrackingStatus converts raw input into a TrackingStatus.
func ParseTrackingStatus(value string) (TrackingStatus, error) {
	for _, candidate := range validTrackingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tracking status %q", value)
}
