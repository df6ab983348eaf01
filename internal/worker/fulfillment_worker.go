package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storefront/internal/model"
)

const idempotencyTTL = 24 * time.Hour

// Consumer is the part of *amqp.Channel the worker needs.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Applier performs a fulfillment command against the stored order.
type Applier interface {
	Apply(ctx context.Context, cmd model.FulfillmentCommand) (*model.Order, error)
}

// FulfillmentWorker consumes fulfillment commands. Each command id is
// applied at most once; commands that cannot be applied are dead-lettered.
type FulfillmentWorker struct {
	channel     Consumer
	applier     Applier
	redisClient *redis.Client
	log         *slog.Logger
	done        chan struct{}
}

func NewFulfillmentWorker(ch Consumer, applier Applier, redisClient *redis.Client, log *slog.Logger) *FulfillmentWorker {
	return &FulfillmentWorker{
		channel:     ch,
		applier:     applier,
		redisClient: redisClient,
		log:         log,
		done:        make(chan struct{}),
	}
}

func idempotencyKey(cmd model.FulfillmentCommand) string {
	return "fulfillment_processed:" + cmd.ID.String()
}

// Start consumes until ctx is cancelled, Stop is called or the delivery
// channel closes. It blocks.
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(FulfillmentQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	w.log.Info("fulfillment worker started")
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			w.processMessage(ctx, msg)
		case <-w.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *FulfillmentWorker) Stop() { close(w.done) }

func (w *FulfillmentWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var cmd model.FulfillmentCommand
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		w.log.Error("unmarshal fulfillment command", "error", err)
		_ = msg.Nack(false, false)
		return
	}
	if !cmd.Action.Valid() {
		w.log.Error("unknown fulfillment action", "command_id", cmd.ID, "action", cmd.Action)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("command_id", cmd.ID, "order_id", cmd.OrderID, "action", cmd.Action)

	key := idempotencyKey(cmd)
	exists, err := w.redisClient.Exists(ctx, key).Result()
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if exists > 0 {
		log.Info("command already applied, skipping")
		_ = msg.Ack(false)
		return
	}

	if _, err := w.applier.Apply(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			log.Warn("shutting down, requeueing fulfillment command", "error", err)
			_ = msg.Nack(false, true)
			return
		}
		log.Error("apply fulfillment command failed", "error", err)
		_ = msg.Nack(false, false) // dead-lettered
		return
	}

	if err := w.redisClient.Set(ctx, key, "1", idempotencyTTL).Err(); err != nil {
		log.Error("set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("fulfillment command applied")
}
