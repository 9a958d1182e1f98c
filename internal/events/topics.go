package events

import (
	"encoding/json"
	"time"
)

// Topics and CloudEvent types used by the quote service.
const (
	// EventSource is the CloudEvent source of everything this service publishes.
	EventSource = "service-quote"

	TopicQuoteEvents   = "quote.events"
	TopicPricingEvents = "pricing.events"

	QuoteRequested      = "quote.requested"
	PricingRatesUpdated = "pricing.rates.updated"
)

// RatesUpdatedEvent carries a rate card patch. Fields absent from Rates keep
// their current value; surcharge entries are merged by service type.
type RatesUpdatedEvent struct {
	Rates      json.RawMessage `json:"rates"`
	UpdatedBy  string          `json:"updated_by,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
