package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/storefront/internal/model"
)

// PublishChannel is the part of *amqp.Channel the publisher needs.
type PublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends order events and fulfillment commands to the events
// exchange as persistent JSON messages.
type Publisher struct {
	ch PublishChannel
}

func NewPublisher(ch PublishChannel) *Publisher {
	return &Publisher{ch: ch}
}

func (p *Publisher) PublishOrderPlaced(ctx context.Context, msg model.OrderMessage) error {
	return p.publish(ctx, OrderPlacedRoutingKey, msg.OrderID.String(), msg)
}

func (p *Publisher) PublishFulfillment(ctx context.Context, cmd model.FulfillmentCommand) error {
	return p.publish(ctx, FulfillmentRoutingKey, cmd.ID.String(), cmd)
}

func (p *Publisher) publish(ctx context.Context, key, messageID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	err = p.ch.PublishWithContext(ctx, EventsExchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}
