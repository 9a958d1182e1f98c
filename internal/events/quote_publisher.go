package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/application"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/kafka"
)

// EventPublisher is the part of kafka.Producer the publisher needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent, key ...string) error
}

var _ application.QuoteSubmitter = (*KafkaQuotePublisher)(nil)

// KafkaQuotePublisher publishes requested quotes as CloudEvents on quote.events.
type KafkaQuotePublisher struct {
	producer EventPublisher
	logger   *zap.Logger
}

// NewKafkaQuotePublisher creates a new KafkaQuotePublisher.
func NewKafkaQuotePublisher(producer EventPublisher, logger *zap.Logger) *KafkaQuotePublisher {
	return &KafkaQuotePublisher{producer: producer, logger: logger}
}

// SubmitQuote publishes a quote.requested event keyed by session.
func (p *KafkaQuotePublisher) SubmitQuote(ctx context.Context, sub application.QuoteSubmission) error {
	ce, err := kafka.NewCloudEvent(EventSource, QuoteRequested, sub)
	if err != nil {
		return err
	}
	if err := p.producer.PublishEvent(ctx, TopicQuoteEvents, ce, sub.SessionID.String()); err != nil {
		p.logger.Error("failed to publish QuoteRequestedEvent",
			zap.String("submission_id", sub.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish quote request: %w", err)
	}
	return nil
}
