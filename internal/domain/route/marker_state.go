package route

import "fmt"

// MarkerState is the click-cycle state derived from which slots hold a marker.
type MarkerState string

const (
	StateEmpty             MarkerState = "empty"
	StateOriginPlaced      MarkerState = "origin_placed"
	StateDestinationPlaced MarkerState = "destination_placed"
	StateRoutePlaced       MarkerState = "route_placed"
)

// validTransitions defines the marker state machine. Self transitions cover
// replacing the marker of an already filled slot.
var validTransitions = map[MarkerState][]MarkerState{
	StateEmpty:             {StateOriginPlaced, StateDestinationPlaced},
	StateOriginPlaced:      {StateOriginPlaced, StateRoutePlaced, StateEmpty},
	StateDestinationPlaced: {StateDestinationPlaced, StateRoutePlaced, StateEmpty},
	StateRoutePlaced:       {StateRoutePlaced, StateOriginPlaced, StateDestinationPlaced, StateEmpty},
}

// IsValid returns true if the state is a recognized marker state.
func (s MarkerState) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this state to the target is allowed.
func (s MarkerState) CanTransitionTo(target MarkerState) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// MarkerCount returns how many markers are on the map in this state.
func (s MarkerState) MarkerCount() int {
	switch s {
	case StateOriginPlaced, StateDestinationPlaced:
		return 1
	case StateRoutePlaced:
		return 2
	default:
		return 0
	}
}

// String returns the string representation of the state.
func (s MarkerState) String() string {
	return string(s)
}

// ParseMarkerState converts a string to a MarkerState, returning an error if invalid.
func ParseMarkerState(s string) (MarkerState, error) {
	state := MarkerState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("invalid marker state: %s", s)
	}
	return state, nil
}

func stateFor(hasOrigin, hasDestination bool) MarkerState {
	switch {
	case hasOrigin && hasDestination:
		return StateRoutePlaced
	case hasOrigin:
		return StateOriginPlaced
	case hasDestination:
		return StateDestinationPlaced
	default:
		return StateEmpty
	}
}
