package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/storefront/internal/checkout"
	"github.com/flicky/storefront/internal/lock"
	"github.com/flicky/storefront/internal/model"
	"github.com/flicky/storefront/internal/repository"
)

// CommandPublisher queues fulfillment commands for the worker.
type CommandPublisher interface {
	PublishFulfillment(ctx context.Context, cmd model.FulfillmentCommand) error
}

// Transition applies action to order in place. Only the status, paid and
// delivered fields change.
func Transition(order *model.Order, action model.FulfillmentAction, now time.Time) error {
	switch action {
	case model.ActionMarkPaid:
		if order.Status != model.OrderStatusPending {
			return invalidTransition(order.Status, action)
		}
		order.Status = model.OrderStatusPaid
		markPaid(order, now)
	case model.ActionShip:
		if order.Status != model.OrderStatusPending && order.Status != model.OrderStatusPaid {
			return invalidTransition(order.Status, action)
		}
		order.Status = model.OrderStatusShipped
	case model.ActionDeliver:
		if order.Status != model.OrderStatusShipped {
			return invalidTransition(order.Status, action)
		}
		order.Status = model.OrderStatusDelivered
		order.IsDelivered = true
		order.DeliveredAt = &now
		if order.PaymentMethod == model.PaymentCashOnDelivery {
			markPaid(order, now)
		}
	case model.ActionCancel:
		if order.Status != model.OrderStatusPending && order.Status != model.OrderStatusPaid {
			return invalidTransition(order.Status, action)
		}
		order.Status = model.OrderStatusCancelled
	default:
		return fmt.Errorf("unknown action %q: %w", action, ErrInvalidTransition)
	}
	return nil
}

func markPaid(order *model.Order, now time.Time) {
	if order.IsPaid {
		return
	}
	order.IsPaid = true
	order.PaidAt = &now
}

func invalidTransition(from model.OrderStatus, action model.FulfillmentAction) error {
	return fmt.Errorf("%s from %s: %w", action, from, ErrInvalidTransition)
}

// FulfillmentService moves orders through their lifecycle. With a publisher
// configured, requests are queued for the worker; otherwise they are applied
// immediately.
type FulfillmentService struct {
	orderRepo repository.OrderRepository
	locker    lock.Locker
	publisher CommandPublisher
	log       *slog.Logger
	now       func() time.Time
}

func NewFulfillmentService(orderRepo repository.OrderRepository, locker lock.Locker, publisher CommandPublisher, log *slog.Logger) *FulfillmentService {
	return &FulfillmentService{
		orderRepo: orderRepo, locker: locker, publisher: publisher, log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Request checks that action is currently allowed and either queues it or
// applies it. queued reports which happened; order is the state the caller
// should show.
func (s *FulfillmentService) Request(ctx context.Context, orderID uuid.UUID, action model.FulfillmentAction) (order *model.Order, queued bool, err error) {
	if !action.Valid() {
		return nil, false, &checkout.ValidationError{
			Fields:  []string{"action"},
			Message: `Action must be one of "mark_paid", "ship", "deliver", "cancel"`,
		}
	}

	order, err = s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, persistence("get order", err)
	}
	if order == nil {
		return nil, false, ErrOrderNotFound
	}
	preview := *order
	if err := Transition(&preview, action, s.now()); err != nil {
		return nil, false, err
	}

	cmd := model.FulfillmentCommand{ID: uuid.New(), OrderID: orderID, Action: action, IssuedAt: s.now()}
	if s.publisher == nil {
		order, err = s.Apply(ctx, cmd)
		return order, false, err
	}
	if err := s.publisher.PublishFulfillment(ctx, cmd); err != nil {
		return nil, false, fmt.Errorf("publish fulfillment command: %w", err)
	}
	s.log.InfoContext(ctx, "fulfillment command queued", "command_id", cmd.ID, "order_id", orderID, "action", action)
	return order, true, nil
}

// Apply performs cmd against the stored order under the order's lock.
func (s *FulfillmentService) Apply(ctx context.Context, cmd model.FulfillmentCommand) (*model.Order, error) {
	release, err := s.locker.Acquire(ctx, lock.OrderKey(cmd.OrderID.String()))
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	defer release()

	order, err := s.orderRepo.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, persistence("get order", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	from := order.Status
	if err := Transition(order, cmd.Action, s.now()); err != nil {
		return nil, err
	}
	if err := s.orderRepo.UpdateStatus(ctx, order); err != nil {
		return nil, persistence("update order status", err)
	}

	s.log.InfoContext(ctx, "order status changed",
		"order_id", order.ID, "action", cmd.Action, "from", from, "to", order.Status)
	return order, nil
}
