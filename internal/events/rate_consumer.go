package events

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/quote"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/kafka"
)

// RateEventConsumer listens to pricing events and swaps the engine's rate card.
type RateEventConsumer struct {
	consumer *kafka.Consumer
	engine   *quote.Engine
	logger   *zap.Logger
}

// NewRateEventConsumer creates a new RateEventConsumer.
func NewRateEventConsumer(
	brokers []string,
	groupID string,
	engine *quote.Engine,
	logger *zap.Logger,
) *RateEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, TopicPricingEvents, logger)
	return &RateEventConsumer{
		consumer: consumer,
		engine:   engine,
		logger:   logger,
	}
}

// Start begins consuming pricing events. This blocks until the context is cancelled.
func (c *RateEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *RateEventConsumer) Close() error {
	return c.consumer.Close()
}

func (c *RateEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from pricing topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case PricingRatesUpdated:
		return c.handleRatesUpdated(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled pricing event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *RateEventConsumer) handleRatesUpdated(_ context.Context, cloudEvent kafka.CloudEvent) error {
	var evt RatesUpdatedEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse RatesUpdatedEvent data", zap.Error(err))
		return nil // Don't retry malformed data
	}

	card := c.engine.Rates()
	if err := json.Unmarshal(evt.Rates, &card); err != nil {
		c.logger.Error("failed to apply rate card patch", zap.Error(err))
		return nil
	}
	if err := c.engine.UpdateRates(card); err != nil {
		c.logger.Warn("rejected invalid rate card",
			zap.String("event_id", cloudEvent.ID),
			zap.Error(err),
		)
		return nil
	}

	c.logger.Info("rate card updated",
		zap.String("event_id", cloudEvent.ID),
		zap.String("updated_by", evt.UpdatedBy),
		zap.Int64("hourly_rate", card.HourlyRate),
		zap.Int64("fixed_rate", card.FixedRate),
		zap.Float64("night_rate", card.NightRate),
	)
	return nil
}
