package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/quote"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/zone"
)

// UpsertZoneRequest holds the data needed to create or replace a zone.
type UpsertZoneRequest struct {
	Code   string     `json:"code" binding:"required"`
	Name   string     `json:"name" binding:"required"`
	Bounds geo.Bounds `json:"bounds" binding:"required"`
}

// SetFareRequest holds the data needed to create or revise a zone fare.
// A non-zero Version must match the stored fare.
type SetFareRequest struct {
	OriginCode      string   `json:"origin_code" binding:"required"`
	DestinationCode string   `json:"destination_code" binding:"required"`
	DistanceKm      *float64 `json:"distance_km" binding:"required"`
	DurationMinutes *float64 `json:"duration_minutes" binding:"required"`
	Version         int64    `json:"version"`
}

// AdminService manages the zone fare table and the active rate card.
type AdminService struct {
	zones  zone.Repository
	engine *quote.Engine
	logger *zap.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(zones zone.Repository, engine *quote.Engine, logger *zap.Logger) *AdminService {
	return &AdminService{zones: zones, engine: engine, logger: logger}
}

// ListZones returns every zone.
func (s *AdminService) ListZones(ctx context.Context) ([]*zone.Zone, error) {
	return s.zones.ListZones(ctx)
}

// SaveZone creates or replaces a zone.
func (s *AdminService) SaveZone(ctx context.Context, req UpsertZoneRequest) (*zone.Zone, error) {
	z, err := zone.NewZone(req.Code, req.Name, req.Bounds)
	if err != nil {
		return nil, err
	}
	if err := s.zones.SaveZone(ctx, z); err != nil {
		return nil, err
	}
	s.logger.Info("zone saved", zap.String("code", z.Code))
	return z, nil
}

// ListFares returns the whole fare matrix.
func (s *AdminService) ListFares(ctx context.Context) ([]*zone.Fare, error) {
	return s.zones.ListFares(ctx)
}

// SetFare creates the fare between two zones or revises the existing one.
func (s *AdminService) SetFare(ctx context.Context, req SetFareRequest) (*zone.Fare, error) {
	if req.DistanceKm == nil || req.DurationMinutes == nil {
		return nil, domain.NewValidationError("distance_km and duration_minutes are required", "distance_km", "duration_minutes")
	}

	existing, err := s.zones.FindFare(ctx, req.OriginCode, req.DestinationCode)
	if err != nil {
		appErr, ok := domain.AsAppError(err)
		if !ok || appErr.Code != domain.CodeNotFound {
			return nil, err
		}

		// No fare yet: create it.
		fare, err := zone.NewFare(req.OriginCode, req.DestinationCode, *req.DistanceKm, *req.DurationMinutes)
		if err != nil {
			return nil, err
		}
		if err := s.zones.SaveFare(ctx, fare); err != nil {
			return nil, err
		}
		s.logger.Info("zone fare created",
			zap.String("origin", fare.OriginCode),
			zap.String("destination", fare.DestinationCode),
		)
		return fare, nil
	}

	if req.Version != 0 && req.Version != existing.Version {
		return nil, domain.NewConflictError(fmt.Sprintf("zone fare is at version %d, not %d", existing.Version, req.Version))
	}
	if err := existing.Revise(*req.DistanceKm, *req.DurationMinutes); err != nil {
		return nil, err
	}
	if err := s.zones.UpdateFare(ctx, existing); err != nil {
		return nil, err
	}
	s.logger.Info("zone fare revised",
		zap.String("origin", existing.OriginCode),
		zap.String("destination", existing.DestinationCode),
		zap.Int64("version", existing.Version),
	)
	return existing, nil
}

// Rates returns the active rate card.
func (s *AdminService) Rates() quote.RateCard {
	return s.engine.Rates()
}

// UpdateRates replaces the active rate card.
func (s *AdminService) UpdateRates(card quote.RateCard) (quote.RateCard, error) {
	if err := s.engine.UpdateRates(card); err != nil {
		return quote.RateCard{}, domain.NewValidationError(err.Error(), "rates")
	}
	s.logger.Info("rate card replaced", zap.Int64("hourly_rate", card.HourlyRate))
	return s.engine.Rates(), nil
}
