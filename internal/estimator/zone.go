package estimator

import (
	"context"
	"fmt"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/zone"
)

// ZoneEstimator looks the duration up in the static zone-to-zone fare table.
type ZoneEstimator struct {
	repo zone.Repository
}

// NewZoneEstimator creates a ZoneEstimator.
func NewZoneEstimator(repo zone.Repository) *ZoneEstimator {
	return &ZoneEstimator{repo: repo}
}

// Estimate locates both points in a zone and reads the fare between the zones.
func (z *ZoneEstimator) Estimate(ctx context.Context, origin, destination geo.GeoPoint) (Estimate, error) {
	if sameEndpoints(origin, destination) {
		return Estimate{Source: StrategyZone}, nil
	}

	zones, err := z.repo.ListZones(ctx)
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to list zones: %w", err)
	}
	from, ok := zone.Locate(zones, origin)
	if !ok {
		return Estimate{}, fmt.Errorf("%w: origin %s is in no zone", ErrNoZoneRoute, origin)
	}
	to, ok := zone.Locate(zones, destination)
	if !ok {
		return Estimate{}, fmt.Errorf("%w: destination %s is in no zone", ErrNoZoneRoute, destination)
	}

	fare, err := z.repo.FindFare(ctx, from.Code, to.Code)
	if err != nil {
		if appErr, ok := domain.AsAppError(err); ok && appErr.Code == domain.CodeNotFound {
			return Estimate{}, fmt.Errorf("%w: %s -> %s", ErrNoZoneRoute, from.Code, to.Code)
		}
		return Estimate{}, fmt.Errorf("failed to find zone fare: %w", err)
	}

	return Estimate{
		DistanceKm:      geo.Distance(origin, destination),
		DurationMinutes: fare.DurationMinutes,
		Source:          StrategyZone,
		RouteDistanceKm: fare.DistanceKm,
		OriginZone:      from.Name,
		DestinationZone: to.Name,
	}, nil
}
