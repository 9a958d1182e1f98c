package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
	zoneDomain "github.com/Kilat-Pet-Delivery/service-quote/internal/domain/zone"
)

// ZoneModel is the GORM model for the zones table.
type ZoneModel struct {
	Code      string          `gorm:"primaryKey;size:20"`
	Name      string          `gorm:"not null;size:100"`
	Bounds    json.RawMessage `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (ZoneModel) TableName() string {
	return "zones"
}

// ZoneFareModel is the GORM model for the zone_fares table.
type ZoneFareModel struct {
	OriginCode      string    `gorm:"primaryKey;size:20"`
	DestinationCode string    `gorm:"primaryKey;size:20"`
	DistanceKm      float64   `gorm:"not null"`
	DurationMinutes float64   `gorm:"not null"`
	Version         int64     `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (ZoneFareModel) TableName() string {
	return "zone_fares"
}

// GormZoneRepository is the GORM-based implementation of zone.Repository.
type GormZoneRepository struct {
	db *gorm.DB
}

var _ zoneDomain.Repository = (*GormZoneRepository)(nil)

// NewGormZoneRepository creates a new GormZoneRepository.
func NewGormZoneRepository(db *gorm.DB) *GormZoneRepository {
	return &GormZoneRepository{db: db}
}

// ListZones returns every zone ordered by code.
func (r *GormZoneRepository) ListZones(ctx context.Context) ([]*zoneDomain.Zone, error) {
	var models []ZoneModel
	if err := r.db.WithContext(ctx).Order("code").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}

	zones := make([]*zoneDomain.Zone, len(models))
	for i := range models {
		z, err := toDomainZone(&models[i])
		if err != nil {
			return nil, err
		}
		zones[i] = z
	}
	return zones, nil
}

// SaveZone inserts a zone or replaces the one with the same code.
func (r *GormZoneRepository) SaveZone(ctx context.Context, z *zoneDomain.Zone) error {
	model, err := toZoneModel(z)
	if err != nil {
		return fmt.Errorf("failed to convert zone to model: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "bounds", "updated_at"}),
		}).
		Create(model).Error; err != nil {
		return fmt.Errorf("failed to save zone: %w", err)
	}
	return nil
}

// FindFare returns the fare between two zones.
func (r *GormZoneRepository) FindFare(ctx context.Context, originCode, destinationCode string) (*zoneDomain.Fare, error) {
	var model ZoneFareModel
	if err := r.db.WithContext(ctx).
		Where("origin_code = ? AND destination_code = ?", originCode, destinationCode).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("ZoneFare", originCode+"->"+destinationCode)
		}
		return nil, fmt.Errorf("failed to find zone fare: %w", err)
	}
	return toDomainFare(&model), nil
}

// ListFares returns the whole fare matrix.
func (r *GormZoneRepository) ListFares(ctx context.Context) ([]*zoneDomain.Fare, error) {
	var models []ZoneFareModel
	if err := r.db.WithContext(ctx).
		Order("origin_code, destination_code").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list zone fares: %w", err)
	}

	fares := make([]*zoneDomain.Fare, len(models))
	for i := range models {
		fares[i] = toDomainFare(&models[i])
	}
	return fares, nil
}

// SaveFare inserts a new fare.
func (r *GormZoneRepository) SaveFare(ctx context.Context, f *zoneDomain.Fare) error {
	if err := r.db.WithContext(ctx).Create(toFareModel(f)).Error; err != nil {
		return fmt.Errorf("failed to save zone fare: %w", err)
	}
	return nil
}

// UpdateFare persists changes to an existing fare with optimistic locking.
// The caller increments Version before calling.
func (r *GormZoneRepository) UpdateFare(ctx context.Context, f *zoneDomain.Fare) error {
	model := toFareModel(f)
	expectedVersion := f.Version - 1

	result := r.db.WithContext(ctx).
		Model(&ZoneFareModel{}).
		Where("origin_code = ? AND destination_code = ? AND version = ?",
			model.OriginCode, model.DestinationCode, expectedVersion).
		Updates(map[string]interface{}{
			"distance_km":      model.DistanceKm,
			"duration_minutes": model.DurationMinutes,
			"version":          model.Version,
			"updated_at":       model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update zone fare: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("zone fare was modified by another transaction")
	}
	return nil
}

// --- Conversion Helpers ---

func toZoneModel(z *zoneDomain.Zone) (*ZoneModel, error) {
	bounds, err := json.Marshal(z.Bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal zone bounds: %w", err)
	}
	return &ZoneModel{
		Code:      z.Code,
		Name:      z.Name,
		Bounds:    bounds,
		UpdatedAt: z.UpdatedAt,
	}, nil
}

func toDomainZone(m *ZoneModel) (*zoneDomain.Zone, error) {
	var bounds geo.Bounds
	if err := json.Unmarshal(m.Bounds, &bounds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bounds of zone %s: %w", m.Code, err)
	}
	return &zoneDomain.Zone{
		Code:      m.Code,
		Name:      m.Name,
		Bounds:    bounds,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func toFareModel(f *zoneDomain.Fare) *ZoneFareModel {
	return &ZoneFareModel{
		OriginCode:      f.OriginCode,
		DestinationCode: f.DestinationCode,
		DistanceKm:      f.DistanceKm,
		DurationMinutes: f.DurationMinutes,
		Version:         f.Version,
		UpdatedAt:       f.UpdatedAt,
	}
}

func toDomainFare(m *ZoneFareModel) *zoneDomain.Fare {
	return &zoneDomain.Fare{
		OriginCode:      m.OriginCode,
		DestinationCode: m.DestinationCode,
		DistanceKm:      m.DistanceKm,
		DurationMinutes: m.DurationMinutes,
		Version:         m.Version,
		UpdatedAt:       m.UpdatedAt,
	}
}
