package quote

import (
	"math"
	"sync/atomic"
)

// Engine prices durations against a rate card that can be replaced at runtime.
type Engine struct {
	strategy PricingStrategy
	card     atomic.Pointer[RateCard]
}

// NewEngine creates an Engine. The rate card is validated.
func NewEngine(strategy PricingStrategy, card RateCard) (*Engine, error) {
	e := &Engine{strategy: strategy}
	if err := e.UpdateRates(card); err != nil {
		return nil, err
	}
	return e, nil
}

// Rates returns a copy of the active rate card.
func (e *Engine) Rates() RateCard {
	return e.card.Load().clone()
}

// UpdateRates validates and swaps in a new rate card.
func (e *Engine) UpdateRates(card RateCard) error {
	if err := card.Validate(); err != nil {
		return err
	}
	c := card.clone()
	e.card.Store(&c)
	return nil
}

// Quote prices a duration. Missing or invalid inputs produce a validation
// error naming every offending field and no result.
func (e *Engine) Quote(durationMinutes float64, opts Options) (QuoteResult, error) {
	card := e.card.Load()

	fields := invalidFields(validate.Struct(opts))
	if opts.ServiceType != "" {
		if _, ok := card.Surcharge(opts.ServiceType); !ok {
			fields = append(fields, FieldServiceType)
		}
	}
	if durationMinutes < 0 || math.IsNaN(durationMinutes) || math.IsInf(durationMinutes, 0) {
		fields = append(fields, FieldDuration)
	}
	if len(fields) > 0 {
		return QuoteResult{}, NewValidationError(fields...)
	}

	tod, err := ParseTimeOfDay(opts.TimeOfDay)
	if err != nil {
		return QuoteResult{}, NewValidationError(FieldTime)
	}

	return e.strategy.Calculate(*card, PricingParams{
		DurationMinutes: durationMinutes,
		ServiceType:     opts.ServiceType,
		TimeOfDay:       tod,
	})
}
