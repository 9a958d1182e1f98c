package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/application"
)

var _ application.QuoteSubmitter = (*AMQPQuotePublisher)(nil)

const (
	quoteExchange = "quote.events"
	quoteQueue    = "quote_requests"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPQuotePublisher publishes requested quotes to a RabbitMQ fanout exchange.
type AMQPQuotePublisher struct {
	ch amqpPublisher
}

// NewAMQPQuotePublisher opens a channel and declares the exchange and its queue.
func NewAMQPQuotePublisher(conn *amqp.Connection) (*AMQPQuotePublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(quoteExchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(quoteQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(quoteQueue, "", quoteExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &AMQPQuotePublisher{ch: ch}, nil
}

// SubmitQuote publishes the submission as a persistent JSON message.
func (p *AMQPQuotePublisher) SubmitQuote(ctx context.Context, sub application.QuoteSubmission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal quote request: %w", err)
	}

	return p.ch.PublishWithContext(ctx, quoteExchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    sub.ID.String(),
		Type:         QuoteRequested,
		AppId:        EventSource,
		Timestamp:    sub.RequestedAt,
		Body:         body,
	})
}
