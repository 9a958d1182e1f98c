package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/application"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/quote"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/kafka"
)

type capturedEvent struct {
	topic string
	event kafka.CloudEvent
	key   []string
}

type fakeProducer struct {
	events []capturedEvent
	err    error
}

func (f *fakeProducer) PublishEvent(_ context.Context, topic string, event kafka.CloudEvent, key ...string) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, capturedEvent{topic: topic, event: event, key: key})
	return nil
}

func newSubmission() application.QuoteSubmission {
	origin := geo.GeoPoint{Lat: 19.4326, Lng: -99.1332}
	return application.QuoteSubmission{
		ID:              uuid.New(),
		SessionID:       uuid.New(),
		Origin:          &origin,
		DurationMinutes: 26,
		ServiceType:     "standard",
		Time:            "14:00",
		Quote:           quote.QuoteResult{Hours: 1, BasePrice: 1500, ServiceCharge: 800, Total: 2300, Currency: "MXN"},
		RequestedAt:     time.Now().UTC(),
	}
}

func TestKafkaQuotePublisher(t *testing.T) {
	producer := &fakeProducer{}
	sub := newSubmission()

	require.NoError(t, NewKafkaQuotePublisher(producer, zap.NewNop()).SubmitQuote(context.Background(), sub))
	require.Len(t, producer.events, 1)

	got := producer.events[0]
	assert.Equal(t, TopicQuoteEvents, got.topic)
	assert.Equal(t, []string{sub.SessionID.String()}, got.key)
	assert.Equal(t, QuoteRequested, got.event.Type)
	assert.Equal(t, EventSource, got.event.Source)

	var data application.QuoteSubmission
	require.NoError(t, got.event.ParseData(&data))
	assert.Equal(t, sub.ID, data.ID)
	assert.Equal(t, int64(2300), data.Quote.Total)
}

func TestKafkaQuotePublisher_Error(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker unavailable")}
	err := NewKafkaQuotePublisher(producer, zap.NewNop()).SubmitQuote(context.Background(), newSubmission())
	assert.Error(t, err)
}

type fakeChannel struct {
	exchange string
	msg      amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.msg = msg
	return nil
}

func TestAMQPQuotePublisher(t *testing.T) {
	ch := &fakeChannel{}
	sub := newSubmission()

	require.NoError(t, (&AMQPQuotePublisher{ch: ch}).SubmitQuote(context.Background(), sub))
	assert.Equal(t, quoteExchange, ch.exchange)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, sub.ID.String(), ch.msg.MessageId)

	var data application.QuoteSubmission
	require.NoError(t, json.Unmarshal(ch.msg.Body, &data))
	assert.Equal(t, sub.SessionID, data.SessionID)
}

func newConsumer(t *testing.T) (*RateEventConsumer, *quote.Engine) {
	t.Helper()
	engine, err := quote.NewEngine(quote.NewStandardPricingStrategy(), quote.DefaultRateCard())
	require.NoError(t, err)
	return &RateEventConsumer{engine: engine, logger: zap.NewNop()}, engine
}

func rateMessage(t *testing.T, eventType string, rates string) kafkago.Message {
	t.Helper()
	ce, err := kafka.NewCloudEvent("service-pricing", eventType, RatesUpdatedEvent{
		Rates:      json.RawMessage(rates),
		UpdatedBy:  "ops",
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	value, err := json.Marshal(ce)
	require.NoError(t, err)
	return kafkago.Message{Topic: TopicPricingEvents, Value: value}
}

func TestRateEventConsumer_AppliesPatch(t *testing.T) {
	c, engine := newConsumer(t)

	msg := rateMessage(t, PricingRatesUpdated, `{"hourly_rate":1800,"vehicle_surcharges":{"xl":0.3}}`)
	require.NoError(t, c.handleMessage(context.Background(), msg))

	rates := engine.Rates()
	assert.Equal(t, int64(1800), rates.HourlyRate)
	assert.Equal(t, int64(800), rates.FixedRate)
	assert.Equal(t, 0.3, rates.VehicleSurcharges["xl"])
	assert.Equal(t, 0.15, rates.VehicleSurcharges["large"])

	res, err := engine.Quote(30, quote.Options{ServiceType: "standard", TimeOfDay: "12:00"})
	require.NoError(t, err)
	assert.Equal(t, int64(2600), res.Total)
}

func TestRateEventConsumer_SkipsBadInput(t *testing.T) {
	c, engine := newConsumer(t)
	before := engine.Rates()

	msgs := []kafkago.Message{
		{Value: []byte("not json")},
		rateMessage(t, PricingRatesUpdated, `{"hourly_rate":-5}`),
		rateMessage(t, PricingRatesUpdated, `{"night_base":"whenever"}`),
		rateMessage(t, "pricing.something.else", `{"hourly_rate":9999}`),
	}
	for _, msg := range msgs {
		assert.NoError(t, c.handleMessage(context.Background(), msg))
	}
	assert.Equal(t, before, engine.Rates())
}
