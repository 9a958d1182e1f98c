package route

import (
	"fmt"
	"math"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

// SlotToken identifies one placement of a slot. Work started for a placement
// carries its token; the token goes stale once the slot is replaced or cleared.
type SlotToken struct {
	Slot       MarkerSlot
	Generation uint64
}

// RouteToken identifies one origin/destination pairing.
type RouteToken struct {
	Generation uint64
}

// Measurement is the distance and duration between the two placed points.
type Measurement struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`
}

// Validate rejects negative or non-finite values.
func (m Measurement) Validate() error {
	if !isNonNegativeFinite(m.DistanceKm) {
		return fmt.Errorf("distance must be a non-negative finite number, got %v", m.DistanceKm)
	}
	if !isNonNegativeFinite(m.DurationMinutes) {
		return fmt.Errorf("duration must be a non-negative finite number, got %v", m.DurationMinutes)
	}
	return nil
}

type endpoint struct {
	point      *geo.GeoPoint
	address    *string
	generation uint64
}

// RouteState is the aggregate tracking the two endpoints, their resolved
// addresses and the measurement between them.
type RouteState struct {
	origin          endpoint
	destination     endpoint
	measurement     *Measurement
	routeGeneration uint64
}

// NewRouteState creates an empty RouteState.
func NewRouteState() *RouteState {
	return &RouteState{}
}

// State returns the marker state derived from the filled slots.
func (r *RouteState) State() MarkerState {
	return stateFor(r.origin.point != nil, r.destination.point != nil)
}

// IsComplete reports whether both endpoints are placed.
func (r *RouteState) IsComplete() bool {
	return r.State() == StateRoutePlaced
}

// Point returns the placed point of a slot.
func (r *RouteState) Point(slot MarkerSlot) (geo.GeoPoint, bool) {
	ep := r.endpoint(slot)
	if ep == nil || ep.point == nil {
		return geo.GeoPoint{}, false
	}
	return *ep.point, true
}

// Address returns the resolved address of a slot.
func (r *RouteState) Address(slot MarkerSlot) (string, bool) {
	ep := r.endpoint(slot)
	if ep == nil || ep.address == nil {
		return "", false
	}
	return *ep.address, true
}

// Measurement returns the computed distance and duration, if any.
func (r *RouteState) Measurement() (Measurement, bool) {
	if r.measurement == nil {
		return Measurement{}, false
	}
	return *r.measurement, true
}

// Place puts a point in a slot, replacing any previous point and address.
// The returned token must accompany the address resolved for this placement.
func (r *RouteState) Place(slot MarkerSlot, p geo.GeoPoint) (SlotToken, error) {
	ep := r.endpoint(slot)
	if ep == nil {
		return SlotToken{}, fmt.Errorf("cannot place marker: invalid slot %q", slot)
	}

	from := r.State()
	hasOrigin := r.origin.point != nil || slot == SlotOrigin
	hasDestination := r.destination.point != nil || slot == SlotDestination
	if to := stateFor(hasOrigin, hasDestination); !from.CanTransitionTo(to) {
		return SlotToken{}, fmt.Errorf("cannot place %s marker: invalid transition %s -> %s", slot, from, to)
	}

	point := p
	ep.point = &point
	ep.address = nil
	ep.generation++
	r.invalidateRoute()

	return SlotToken{Slot: slot, Generation: ep.generation}, nil
}

// ApplyAddress stores an address resolved for the placement identified by tok.
// The first address applied for a placement wins. It returns false when the
// token is stale or the placement already has an address.
func (r *RouteState) ApplyAddress(tok SlotToken, address string) bool {
	ep := r.endpoint(tok.Slot)
	if ep == nil || ep.point == nil || ep.generation != tok.Generation || ep.address != nil {
		return false
	}
	ep.address = &address
	return true
}

// OverrideAddress replaces the address of the placement identified by tok,
// whether or not one was already applied. It returns false when the token is stale.
func (r *RouteState) OverrideAddress(tok SlotToken, address string) bool {
	ep := r.endpoint(tok.Slot)
	if ep == nil || ep.point == nil || ep.generation != tok.Generation {
		return false
	}
	ep.address = &address
	return true
}

// CurrentRoute returns a token for the current pairing when both points are placed.
func (r *RouteState) CurrentRoute() (RouteToken, bool) {
	if !r.IsComplete() {
		return RouteToken{}, false
	}
	return RouteToken{Generation: r.routeGeneration}, true
}

// IsCurrent reports whether tok still identifies the current pairing.
func (r *RouteState) IsCurrent(tok RouteToken) bool {
	return r.IsComplete() && tok.Generation == r.routeGeneration
}

// ApplyMeasurement stores the measurement computed for the pairing identified by tok.
// A stale token is reported as (false, nil).
func (r *RouteState) ApplyMeasurement(tok RouteToken, m Measurement) (bool, error) {
	if !r.IsCurrent(tok) {
		return false, nil
	}
	if err := m.Validate(); err != nil {
		return false, err
	}
	r.measurement = &m
	return true, nil
}

// Clear empties one slot without touching the other and drops the measurement.
func (r *RouteState) Clear(slot MarkerSlot) error {
	ep := r.endpoint(slot)
	if ep == nil {
		return fmt.Errorf("cannot clear marker: invalid slot %q", slot)
	}
	ep.point = nil
	ep.address = nil
	ep.generation++
	r.invalidateRoute()
	return nil
}

// Reset empties both slots. In-flight work for either slot becomes stale.
func (r *RouteState) Reset() {
	_ = r.Clear(SlotOrigin)
	_ = r.Clear(SlotDestination)
}

// Snapshot is the read model of a RouteState.
type Snapshot struct {
	State              MarkerState   `json:"state"`
	Origin             *geo.GeoPoint `json:"origin,omitempty"`
	Destination        *geo.GeoPoint `json:"destination,omitempty"`
	OriginAddress      *string       `json:"origin_address,omitempty"`
	DestinationAddress *string       `json:"destination_address,omitempty"`
	DistanceKm         *float64      `json:"distance_km,omitempty"`
	DurationMinutes    *float64      `json:"duration_minutes,omitempty"`
}

// Snapshot returns a copy of the current state.
func (r *RouteState) Snapshot() Snapshot {
	s := Snapshot{
		State:              r.State(),
		Origin:             copyPoint(r.origin.point),
		Destination:        copyPoint(r.destination.point),
		OriginAddress:      copyString(r.origin.address),
		DestinationAddress: copyString(r.destination.address),
	}
	if r.measurement != nil {
		distance := r.measurement.DistanceKm
		duration := r.measurement.DurationMinutes
		s.DistanceKm = &distance
		s.DurationMinutes = &duration
	}
	return s
}

func (r *RouteState) endpoint(slot MarkerSlot) *endpoint {
	switch slot {
	case SlotOrigin:
		return &r.origin
	case SlotDestination:
		return &r.destination
	default:
		return nil
	}
}

func (r *RouteState) invalidateRoute() {
	r.measurement = nil
	r.routeGeneration++
}

func copyPoint(p *geo.GeoPoint) *geo.GeoPoint {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func isNonNegativeFinite(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
