package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

// Strategy names accepted by New.
const (
	StrategyHaversine  = "haversine"
	StrategyDirections = "directions"
	StrategyOSRM       = "osrm"
	StrategyZone       = "zone"
)

var (
	// ErrNoRoute is returned when a routing provider finds no route.
	ErrNoRoute = errors.New("estimator: no route between points")
	// ErrProviderStatus is returned when a routing provider answers with an error status.
	ErrProviderStatus = errors.New("estimator: provider error")
	// ErrNoZoneRoute is returned when either point lies outside every zone or
	// the zone pair has no fare.
	ErrNoZoneRoute = errors.New("estimator: no zone fare for route")
)

// Estimate is the outcome of estimating a route. DistanceKm is always the
// great-circle distance so it does not depend on the strategy.
type Estimate struct {
	DistanceKm      float64
	DurationMinutes float64
	Source          string
	// RouteDistanceKm is the distance along the provider route, when known.
	RouteDistanceKm float64
	// Path is the provider geometry. Empty means a straight line.
	Path []geo.GeoPoint
	// StartAddress and EndAddress are provider leg addresses. They replace
	// the reverse geocoded text of the endpoints when set.
	StartAddress string
	EndAddress   string
	// OriginZone and DestinationZone name the zones a zone estimate used.
	OriginZone      string
	DestinationZone string
	// DurationText is the provider's display text for the duration, if any.
	DurationText string
}

// RouteEstimator computes distance and duration between two points.
type RouteEstimator interface {
	Estimate(ctx context.Context, origin, destination geo.GeoPoint) (Estimate, error)
}

// HaversineEstimator derives the duration from the great-circle distance and
// an assumed average speed.
type HaversineEstimator struct {
	speedKmh float64
}

// NewHaversineEstimator creates a HaversineEstimator.
func NewHaversineEstimator(averageSpeedKmh float64) (*HaversineEstimator, error) {
	if averageSpeedKmh <= 0 || math.IsInf(averageSpeedKmh, 0) || math.IsNaN(averageSpeedKmh) {
		return nil, fmt.Errorf("average speed must be a positive number, got %v", averageSpeedKmh)
	}
	return &HaversineEstimator{speedKmh: averageSpeedKmh}, nil
}

// Estimate returns ceil(distance / speed * 60) minutes.
func (h *HaversineEstimator) Estimate(_ context.Context, origin, destination geo.GeoPoint) (Estimate, error) {
	km := geo.Distance(origin, destination)
	return Estimate{
		DistanceKm:      km,
		DurationMinutes: DurationForDistance(km, h.speedKmh),
		Source:          StrategyHaversine,
	}, nil
}

// DurationForDistance returns the whole minutes needed to cover km at speedKmh.
func DurationForDistance(km, speedKmh float64) float64 {
	if km <= 0 {
		return 0
	}
	return math.Ceil(km / speedKmh * 60)
}

// secondsToMinutes converts a provider duration, rejecting bad values.
func secondsToMinutes(seconds float64) (float64, error) {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("%w: invalid duration %v", ErrProviderStatus, seconds)
	}
	return seconds / 60, nil
}

// sameEndpoints reports a zero-length route; providers are not called for it.
func sameEndpoints(origin, destination geo.GeoPoint) bool {
	return origin == destination
}
