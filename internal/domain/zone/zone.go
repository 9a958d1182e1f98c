package zone

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
)

// Zone is a named rectangular area of the service region.
type Zone struct {
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Bounds    geo.Bounds `json:"bounds"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewZone validates and creates a Zone.
func NewZone(code, name string, bounds geo.Bounds) (*Zone, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.NewValidationError("zone code is required", "code")
	}
	if name == "" {
		return nil, domain.NewValidationError("zone name is required", "name")
	}
	if err := bounds.Validate(); err != nil {
		return nil, domain.NewValidationError(err.Error(), "bounds")
	}
	return &Zone{Code: code, Name: name, Bounds: bounds, UpdatedAt: time.Now().UTC()}, nil
}

// Fare is the precomputed travel estimate between two zones.
type Fare struct {
	OriginCode      string    `json:"origin_code"`
	DestinationCode string    `json:"destination_code"`
	DistanceKm      float64   `json:"distance_km"`
	DurationMinutes float64   `json:"duration_minutes"`
	Version         int64     `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewFare validates and creates a Fare between two zone codes.
func NewFare(originCode, destinationCode string, distanceKm, durationMinutes float64) (*Fare, error) {
	originCode = strings.ToUpper(strings.TrimSpace(originCode))
	destinationCode = strings.ToUpper(strings.TrimSpace(destinationCode))
	if originCode == "" || destinationCode == "" {
		return nil, domain.NewValidationError("both zone codes are required", "origin_code", "destination_code")
	}
	if distanceKm < 0 {
		return nil, domain.NewValidationError(fmt.Sprintf("distance cannot be negative: %v", distanceKm), "distance_km")
	}
	if durationMinutes < 0 {
		return nil, domain.NewValidationError(fmt.Sprintf("duration cannot be negative: %v", durationMinutes), "duration_minutes")
	}
	return &Fare{
		OriginCode:      originCode,
		DestinationCode: destinationCode,
		DistanceKm:      distanceKm,
		DurationMinutes: durationMinutes,
		Version:         1,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

// Revise changes the fare values and bumps the version for optimistic locking.
func (f *Fare) Revise(distanceKm, durationMinutes float64) error {
	if distanceKm < 0 {
		return domain.NewValidationError(fmt.Sprintf("distance cannot be negative: %v", distanceKm), "distance_km")
	}
	if durationMinutes < 0 {
		return domain.NewValidationError(fmt.Sprintf("duration cannot be negative: %v", durationMinutes), "duration_minutes")
	}
	f.DistanceKm = distanceKm
	f.DurationMinutes = durationMinutes
	f.Version++
	f.UpdatedAt = time.Now().UTC()
	return nil
}

// Locate returns the first zone containing p, in the given order.
func Locate(zones []*Zone, p geo.GeoPoint) (*Zone, bool) {
	for _, z := range zones {
		if z.Bounds.Contains(p) {
			return z, true
		}
	}
	return nil, false
}

// Repository defines the persistence contract for zones and the zone fare matrix.
type Repository interface {
	// ListZones returns every zone ordered by code.
	ListZones(ctx context.Context) ([]*Zone, error)

	// SaveZone inserts or replaces a zone.
	SaveZone(ctx context.Context, z *Zone) error

	// FindFare returns the fare between two zones.
	FindFare(ctx context.Context, originCode, destinationCode string) (*Fare, error)

	// ListFares returns the whole fare matrix.
	ListFares(ctx context.Context) ([]*Fare, error)

	// SaveFare inserts a new fare.
	SaveFare(ctx context.Context, f *Fare) error

	// UpdateFare persists changes to an existing fare with optimistic locking.
	UpdateFare(ctx context.Context, f *Fare) error
}
