package quote

import (
	"fmt"
	"strings"
)

// NightBase names the amount the night surcharge percentage applies to.
type NightBase string

const (
	// NightBaseSubtotal applies the night rate to basePrice + serviceCharge.
	NightBaseSubtotal NightBase = "subtotal"
	// NightBaseBasePrice applies the night rate to basePrice only.
	NightBaseBasePrice NightBase = "base_price"
)

// DefaultServiceType is the vehicle tier without a surcharge.
const DefaultServiceType = "standard"

// RateCard holds every pricing constant. Amounts are whole currency units.
type RateCard struct {
	HourlyRate     int64     `json:"hourly_rate" mapstructure:"hourly_rate" validate:"gt=0"`
	FixedRate      int64     `json:"fixed_rate" mapstructure:"fixed_rate" validate:"gte=0"`
	Currency       string    `json:"currency" mapstructure:"currency" validate:"required,len=3"`
	NightRate      float64   `json:"night_rate" mapstructure:"night_rate" validate:"gte=0,lte=1"`
	NightBase      NightBase `json:"night_base" mapstructure:"night_base" validate:"oneof=subtotal base_price"`
	NightStartHour int       `json:"night_start_hour" mapstructure:"night_start_hour" validate:"gte=0,lte=23"`
	NightEndHour   int       `json:"night_end_hour" mapstructure:"night_end_hour" validate:"gte=0,lte=23"`
	// VehicleSurcharges maps a service type to a fraction of basePrice.
	VehicleSurcharges map[string]float64 `json:"vehicle_surcharges" mapstructure:"vehicle_surcharges" validate:"required,min=1,dive,gte=0,lte=5"`
}

// DefaultRateCard returns the rates used by the Mexico City deployment.
func DefaultRateCard() RateCard {
	return RateCard{
		HourlyRate:     1500,
		FixedRate:      800,
		Currency:       "MXN",
		NightRate:      0.20,
		NightBase:      NightBaseSubtotal,
		NightStartHour: 22,
		NightEndHour:   6,
		VehicleSurcharges: map[string]float64{
			DefaultServiceType: 0,
			"large":            0.15,
		},
	}
}

// Validate checks the rate card for consistency.
func (c RateCard) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid rate card: %w", err)
	}
	return nil
}

// Surcharge returns the vehicle surcharge fraction for a service type.
func (c RateCard) Surcharge(serviceType string) (float64, bool) {
	rate, ok := c.VehicleSurcharges[strings.ToLower(strings.TrimSpace(serviceType))]
	return rate, ok
}

// IsNight reports whether the time of day falls in [NightStartHour, NightEndHour).
// The window wraps midnight when the start is later than the end.
func (c RateCard) IsNight(t TimeOfDay) bool {
	start, end := c.NightStartHour, c.NightEndHour
	switch {
	case start == end:
		return false
	case start < end:
		return t.Hour >= start && t.Hour < end
	default:
		return t.Hour >= start || t.Hour < end
	}
}

func (c RateCard) clone() RateCard {
	out := c
	out.VehicleSurcharges = make(map[string]float64, len(c.VehicleSurcharges))
	for k, v := range c.VehicleSurcharges {
		out.VehicleSurcharges[strings.ToLower(k)] = v
	}
	return out
}
