package quote

import (
	"fmt"
	"math"
)

// QuoteResult is an itemized price. All amounts are non-negative whole currency units.
type QuoteResult struct {
	Hours         int64 `json:"hours"`
	BasePrice     int64 `json:"base_price"`
	ServiceCharge int64 `json:"service_charge"`
	NightCharge   int64 `json:"night_charge"`
	// DistanceCharge is the vehicle-tier surcharge for the requested service type.
	DistanceCharge int64  `json:"distance_charge"`
	Total          int64  `json:"total"`
	Currency       string `json:"currency"`
}

// PricingStrategy defines the interface for turning a duration into a price.
type PricingStrategy interface {
	// Calculate returns the itemized price for the given parameters under the rate card.
	Calculate(card RateCard, params PricingParams) (QuoteResult, error)
}

// PricingParams holds the inputs for price calculation.
type PricingParams struct {
	DurationMinutes float64
	ServiceType     string
	TimeOfDay       TimeOfDay
}

// StandardPricingStrategy implements hourly pricing with a flat service fee.
type StandardPricingStrategy struct{}

// NewStandardPricingStrategy creates a new StandardPricingStrategy.
func NewStandardPricingStrategy() *StandardPricingStrategy {
	return &StandardPricingStrategy{}
}

// Calculate computes the price.
//
// Pricing formula:
//   - hours: ceil(duration / 60), so any started hour is billed in full
//   - base price: hours * HourlyRate
//   - service charge: FixedRate, independent of duration
//   - night charge: NightRate of the configured NightBase when the time is in the night window
//   - distance charge: the service type's surcharge fraction of the base price
//   - total: base + service + night + distance
//
// Percentages never apply to another surcharge.
func (s *StandardPricingStrategy) Calculate(card RateCard, params PricingParams) (QuoteResult, error) {
	if params.DurationMinutes < 0 || math.IsNaN(params.DurationMinutes) || math.IsInf(params.DurationMinutes, 0) {
		return QuoteResult{}, fmt.Errorf("duration must be a non-negative finite number")
	}

	surcharge, ok := card.Surcharge(params.ServiceType)
	if !ok {
		return QuoteResult{}, fmt.Errorf("unknown service type for pricing: %s", params.ServiceType)
	}

	hours := int64(math.Ceil(params.DurationMinutes / 60))
	base := hours * card.HourlyRate
	service := card.FixedRate

	var night int64
	if card.IsNight(params.TimeOfDay) {
		nightBase := base + service
		if card.NightBase == NightBaseBasePrice {
			nightBase = base
		}
		night = percentOf(nightBase, card.NightRate)
	}

	distance := percentOf(base, surcharge)

	return QuoteResult{
		Hours:          hours,
		BasePrice:      base,
		ServiceCharge:  service,
		NightCharge:    night,
		DistanceCharge: distance,
		Total:          base + service + night + distance,
		Currency:       card.Currency,
	}, nil
}

func percentOf(amount int64, rate float64) int64 {
	if rate <= 0 || amount <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * rate))
}
