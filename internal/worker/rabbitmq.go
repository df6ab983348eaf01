package worker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange         = "orders.events"
	OrderPlacedRoutingKey  = "order.placed"
	OrderPlacedQueue       = "orders.placed"
	FulfillmentRoutingKey  = "order.fulfillment"
	FulfillmentQueue       = "orders.fulfillment"
	deadLetterExchange     = "orders.dlx"
	fulfillmentDeadLetters = "orders.fulfillment.dlq"
)

// SetupRabbitMQ declares the events exchange, the placed-order and
// fulfillment queues, and the dead-letter exchange the fulfillment queue
// rejects into.
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare events exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(deadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(fulfillmentDeadLetters, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(fulfillmentDeadLetters, FulfillmentRoutingKey, deadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}

	if _, err := ch.QueueDeclare(OrderPlacedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare placed queue: %w", err)
	}
	if err := ch.QueueBind(OrderPlacedQueue, OrderPlacedRoutingKey, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("bind placed queue: %w", err)
	}

	if _, err := ch.QueueDeclare(FulfillmentQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    deadLetterExchange,
		"x-dead-letter-routing-key": FulfillmentRoutingKey,
	}); err != nil {
		return fmt.Errorf("declare fulfillment queue: %w", err)
	}
	if err := ch.QueueBind(FulfillmentQueue, FulfillmentRoutingKey, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("bind fulfillment queue: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}
