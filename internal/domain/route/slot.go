package route

import "fmt"

// MarkerSlot is one of the two route endpoints.
type MarkerSlot string

const (
	SlotOrigin      MarkerSlot = "origin"
	SlotDestination MarkerSlot = "destination"
)

// IsValid returns true if the slot is origin or destination.
func (s MarkerSlot) IsValid() bool {
	return s == SlotOrigin || s == SlotDestination
}

// Other returns the opposite slot.
func (s MarkerSlot) Other() MarkerSlot {
	if s == SlotOrigin {
		return SlotDestination
	}
	return SlotOrigin
}

// ParseMarkerSlot converts a string to a MarkerSlot.
func ParseMarkerSlot(s string) (MarkerSlot, error) {
	slot := MarkerSlot(s)
	if !slot.IsValid() {
		return "", fmt.Errorf("invalid marker slot: %s", s)
	}
	return slot, nil
}

// SelectionMode decides which slot a click fills.
type SelectionMode string

const (
	// SelectionAuto follows the click cycle.
	SelectionAuto SelectionMode = "auto"
	// SelectionOrigin sends clicks to the origin slot.
	SelectionOrigin SelectionMode = "origin"
	// SelectionDestination sends clicks to the destination slot.
	SelectionDestination SelectionMode = "destination"
)

// IsValid returns true if the mode is recognized.
func (m SelectionMode) IsValid() bool {
	return m == SelectionAuto || m == SelectionOrigin || m == SelectionDestination
}

// ParseSelectionMode converts a string to a SelectionMode.
func ParseSelectionMode(s string) (SelectionMode, error) {
	mode := SelectionMode(s)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid selection mode: %s", s)
	}
	return mode, nil
}

// Target is the outcome of routing a click to a slot.
type Target struct {
	Slot MarkerSlot
	// Reset is set when the whole route must be cleared before placing.
	Reset bool
}

// TargetFor picks the slot for the next click given the current state and mode.
//
// In auto mode the cycle is Empty -> origin, OriginPlaced -> destination,
// DestinationPlaced -> origin, RoutePlaced -> reset then origin.
// In manual modes the selected slot is replaced and nothing is reset.
func TargetFor(state MarkerState, mode SelectionMode) Target {
	switch mode {
	case SelectionOrigin:
		return Target{Slot: SlotOrigin}
	case SelectionDestination:
		return Target{Slot: SlotDestination}
	}

	switch state {
	case StateOriginPlaced:
		return Target{Slot: SlotDestination}
	case StateRoutePlaced:
		return Target{Slot: SlotOrigin, Reset: true}
	default:
		return Target{Slot: SlotOrigin}
	}
}
