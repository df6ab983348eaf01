package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID          uuid.UUID
	Name        string
	Brand       string
	Image       string
	Category    string
	Description string
	Featured    bool
	Price       decimal.Decimal
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductFilter narrows a catalog listing.
type ProductFilter struct {
	Search   string
	Category string
	Featured bool
	Sort     string
	Limit    int
	Offset   int
}

const (
	SortNewest    = "newest"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
	SortName      = "name"
)

// Cart belongs to exactly one user and is never deleted, only emptied.
type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item returns the line with the given id, or nil.
func (c *Cart) Item(id uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i]
		}
	}
	return nil
}

// ItemForProduct returns the line holding productID, or nil.
func (c *Cart) ItemForProduct(productID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// CartItem quantity is always >= 1; a line reduced to zero is deleted.
type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "card"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentCashOnDelivery
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type ShippingAddress struct {
	State   string
	Address string
	City    string
}

// CardDetails is the redacted card record kept on an order. The full number
// and the CVV are never stored.
type CardDetails struct {
	Last4      string
	ExpiryDate string
	CardType   string
}

// Order is immutable after creation apart from its status fields.
type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	CardDetails     *CardDetails
	Total           decimal.Decimal
	Status          OrderStatus
	IsPaid          bool
	PaidAt          *time.Time
	IsDelivered     bool
	DeliveredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem carries the unit price captured when the order was placed.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Price     decimal.Decimal
}

// OrderMessage is published when an order is placed.
type OrderMessage struct {
	OrderID       uuid.UUID       `json:"order_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Status        OrderStatus     `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	PlacedAt      time.Time       `json:"placed_at"`
}

type FulfillmentAction string

const (
	ActionMarkPaid FulfillmentAction = "mark_paid"
	ActionShip     FulfillmentAction = "ship"
	ActionDeliver  FulfillmentAction = "deliver"
	ActionCancel   FulfillmentAction = "cancel"
)

func (a FulfillmentAction) Valid() bool {
	switch a {
	case ActionMarkPaid, ActionShip, ActionDeliver, ActionCancel:
		return true
	}
	return false
}

// FulfillmentCommand asks the fulfillment worker to move an order along.
type FulfillmentCommand struct {
	ID       uuid.UUID         `json:"id"`
	OrderID  uuid.UUID         `json:"order_id"`
	Action   FulfillmentAction `json:"action"`
	IssuedAt time.Time         `json:"issued_at"`
}
