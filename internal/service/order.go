package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flicky/storefront/internal/checkout"
	"github.com/flicky/storefront/internal/lock"
	"github.com/flicky/storefront/internal/model"
	"github.com/flicky/storefront/internal/pricing"
	"github.com/flicky/storefront/internal/repository"
)

const (
	MsgOrderPlacedCOD  = "Your order is placed successfully!"
	MsgOrderPlacedCard = "Order placed successfully with card payment!"
	DeliveryNoteCOD    = "Pay cash on delivery"

	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// EventPublisher announces placed orders to downstream consumers.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, msg model.OrderMessage) error
}

// PaymentConfirmation is the payment-method specific part of a placement
// result. Cash orders carry delivery instructions, card orders the masked
// card number.
type PaymentConfirmation struct {
	Message              string
	PaymentStatus        string
	DeliveryInstructions string
	CardNumber           string
	CardType             string
}

type PlaceOrderResult struct {
	Order        *model.Order
	Confirmation PaymentConfirmation
}

// OrderItemView is an order item joined with the product's current display
// fields. Price stays the captured unit price.
type OrderItemView struct {
	model.OrderItem
	Name     string
	Brand    string
	Image    string
	Subtotal decimal.Decimal
}

type OrderView struct {
	*model.Order
	Items   []OrderItemView
	Summary pricing.Summary
}

type OrderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	locker      lock.Locker
	payments    checkout.PaymentAuthorizer
	events      EventPublisher
	log         *slog.Logger
	now         func() time.Time
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	locker lock.Locker,
	payments checkout.PaymentAuthorizer,
	events EventPublisher,
	log *slog.Logger,
) *OrderService {
	return &OrderService{
		orderRepo: orderRepo, cartRepo: cartRepo, productRepo: productRepo,
		locker: locker, payments: payments, events: events, log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder validates the checkout input, snapshots the user's cart into a
// new order and empties the cart. The order write and the cart clear are
// separate steps: a failed clear is logged and the order still stands.
func (s *OrderService) PlaceOrder(ctx context.Context, userID uuid.UUID, in checkout.Input) (*PlaceOrderResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("payment.method", in.Payment.Method),
	))
	defer span.End()

	co, err := checkout.Validate(in)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.CartKey(userID.String()))
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	defer release()

	cart, err := s.cartRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, persistence("get cart", err)
	}
	order, err := s.snapshot(ctx, userID, cart)
	if err != nil {
		return nil, err
	}
	order.ShippingAddress = co.ShippingAddress
	order.PaymentMethod = co.PaymentMethod
	order.CardDetails = co.Card

	auth, err := s.payments.Authorize(ctx, checkout.PaymentRequest{
		UserID:     userID,
		Method:     co.PaymentMethod,
		Amount:     order.Total,
		CardNumber: co.CardNumber(),
		Card:       co.Card,
	})
	if err != nil {
		return nil, fmt.Errorf("authorize payment: %w", err)
	}
	if co.PaymentMethod == model.PaymentCard {
		if !auth.Approved {
			return nil, ErrPaymentDeclined
		}
		paidAt := auth.AuthorizedAt
		if paidAt.IsZero() {
			paidAt = order.CreatedAt
		}
		order.Status = model.OrderStatusPaid
		order.IsPaid = true
		order.PaidAt = &paidAt
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		span.RecordError(err)
		return nil, persistence("create order", err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID.String()))

	if cart != nil {
		if err := s.cartRepo.ClearCart(ctx, cart.ID); err != nil {
			s.log.WarnContext(ctx, "clear cart after order placement failed",
				"order_id", order.ID, "user_id", userID, "error", err)
		}
	}

	if s.events != nil {
		msg := model.OrderMessage{
			OrderID: order.ID, UserID: userID, Status: order.Status,
			PaymentMethod: order.PaymentMethod, Total: order.Total, PlacedAt: order.CreatedAt,
		}
		if err := s.events.PublishOrderPlaced(ctx, msg); err != nil {
			s.log.WarnContext(ctx, "publish order placed event failed", "order_id", order.ID, "error", err)
		}
	}

	s.log.InfoContext(ctx, "order placed",
		"order_id", order.ID, "user_id", userID, "payment_method", order.PaymentMethod,
		"total", order.Total.String(), "items", len(order.Items))

	return &PlaceOrderResult{Order: order, Confirmation: confirmationFor(order)}, nil
}

// snapshot copies the cart lines and the products' current prices into a
// pending order. A nil or empty cart yields an order with no items.
func (s *OrderService) snapshot(ctx context.Context, userID uuid.UUID, cart *model.Cart) (*model.Order, error) {
	order := &model.Order{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    model.OrderStatusPending,
		CreatedAt: s.now(),
		Total:     decimal.Zero,
	}
	if cart == nil || len(cart.Items) == 0 {
		return order, nil
	}

	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, persistence("get order products", err)
	}

	lines := make([]pricing.Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		line := pricing.LineFor(item, products[item.ProductID])
		lines = append(lines, line)
		order.Items = append(order.Items, model.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     line.UnitPrice,
		})
	}
	order.Total = pricing.CartTotal(lines)
	return order, nil
}

func confirmationFor(order *model.Order) PaymentConfirmation {
	if order.PaymentMethod == model.PaymentCard {
		c := PaymentConfirmation{Message: MsgOrderPlacedCard, PaymentStatus: PaymentStatusPaid}
		if order.CardDetails != nil {
			c.CardNumber = checkout.Mask(order.CardDetails.Last4)
			c.CardType = order.CardDetails.CardType
		}
		return c
	}
	return PaymentConfirmation{
		Message:              MsgOrderPlacedCOD,
		PaymentStatus:        PaymentStatusPending,
		DeliveryInstructions: DeliveryNoteCOD,
	}
}

// GetOrder returns an order joined with product display fields.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, persistence("get order", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	views, err := s.views(ctx, []model.Order{*order})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// GetOrderForUser is GetOrder restricted to the order's owner unless the
// caller is an admin.
func (s *OrderService) GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID, admin bool) (*OrderView, error) {
	view, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !admin && view.UserID != userID {
		return nil, ErrOrderAccessDenied
	}
	return view, nil
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]OrderView, error) {
	orders, err := s.orderRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, persistence("list orders", err)
	}
	return s.views(ctx, orders)
}

func (s *OrderService) views(ctx context.Context, orders []model.Order) ([]OrderView, error) {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, o := range orders {
		for _, it := range o.Items {
			if _, ok := seen[it.ProductID]; !ok {
				seen[it.ProductID] = struct{}{}
				ids = append(ids, it.ProductID)
			}
		}
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, persistence("get order products", err)
	}

	out := make([]OrderView, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		v := OrderView{Order: o, Items: make([]OrderItemView, 0, len(o.Items)), Summary: pricing.Summarize(o.Total)}
		lines := pricing.OrderLines(o.Items)
		for j, it := range o.Items {
			iv := OrderItemView{OrderItem: it, Subtotal: pricing.LineSubtotal(lines[j])}
			if p := products[it.ProductID]; p != nil {
				iv.Name, iv.Brand, iv.Image = p.Name, p.Brand, p.Image
			}
			v.Items = append(v.Items, iv)
		}
		out = append(out, v)
	}
	return out, nil
}
