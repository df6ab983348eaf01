package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
}

// --- Product ---

type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Brand       string          `json:"brand"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Description string          `json:"description" binding:"required"`
	Featured    bool            `json:"featured"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	Stock       int             `json:"stock" binding:"min=0"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Brand       *string          `json:"brand"`
	Image       *string          `json:"image"`
	Category    *string          `json:"category"`
	Description *string          `json:"description"`
	Featured    *bool            `json:"featured"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" binding:"omitempty,min=0"`
}

type ListProductsRequest struct {
	Page     int    `form:"page,default=1" binding:"min=1"`
	Limit    int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search   string `form:"search"`
	Category string `form:"category"`
	Featured bool   `form:"featured"`
	Sort     string `form:"sort,default=newest" binding:"oneof=newest price-low price-high name"`
}

type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Brand       string          `json:"brand"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Featured    bool            `json:"featured"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity"`
}

// UpdateCartItemRequest.Quantity is a pointer so an explicit 0, which
// removes the line, is told apart from a missing field.
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type CartResponse struct {
	ID         uuid.UUID          `json:"id"`
	Items      []CartItemResponse `json:"items"`
	Total      decimal.Decimal    `json:"total"`
	Tax        decimal.Decimal    `json:"tax"`
	GrandTotal decimal.Decimal    `json:"grand_total"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// CartItemResponse.Product is null when the product no longer exists.
type CartItemResponse struct {
	ID        uuid.UUID            `json:"id"`
	ProductID uuid.UUID            `json:"product_id"`
	Product   *CartProductResponse `json:"product"`
	Quantity  int                  `json:"quantity"`
	Subtotal  decimal.Decimal      `json:"subtotal"`
}

type CartProductResponse struct {
	Name  string          `json:"name"`
	Image string          `json:"image"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// --- Order ---

type ShippingAddressRequest struct {
	State   string `json:"state"`
	Address string `json:"address"`
	City    string `json:"city"`
}

type CardDetailsRequest struct {
	CardNumber string `json:"card_number"`
	ExpiryDate string `json:"expiry_date"`
	CVV        string `json:"cvv"`
	CardType   string `json:"card_type"`
}

// PlaceOrderRequest is validated by the checkout package, not by binding
// tags, so every failure names the offending field group.
type PlaceOrderRequest struct {
	ShippingAddress *ShippingAddressRequest `json:"shipping_address"`
	PaymentMethod   string                  `json:"payment_method"`
	CardDetails     *CardDetailsRequest     `json:"card_details"`
}

type PlaceOrderResponse struct {
	OrderID              uuid.UUID         `json:"order_id"`
	Status               model.OrderStatus `json:"status"`
	Message              string            `json:"message"`
	PaymentStatus        string            `json:"payment_status"`
	DeliveryInstructions string            `json:"delivery_instructions,omitempty"`
	CardDetails          *CardSummary      `json:"card_details,omitempty"`
	Total                decimal.Decimal   `json:"total"`
}

type CardSummary struct {
	CardNumber string `json:"card_number"`
	CardType   string `json:"card_type"`
	ExpiryDate string `json:"expiry_date,omitempty"`
}

type UpdateOrderStatusRequest struct {
	Action model.FulfillmentAction `json:"action" binding:"required"`
}

type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"user_id"`
	Status          model.OrderStatus   `json:"status"`
	PaymentMethod   model.PaymentMethod `json:"payment_method"`
	CardDetails     *CardSummary        `json:"card_details,omitempty"`
	ShippingAddress ShippingAddress     `json:"shipping_address"`
	Items           []OrderItemResponse `json:"items"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	Tax             decimal.Decimal     `json:"tax"`
	Shipping        decimal.Decimal     `json:"shipping"`
	GrandTotal      decimal.Decimal     `json:"grand_total"`
	IsPaid          bool                `json:"is_paid"`
	PaidAt          *time.Time          `json:"paid_at"`
	IsDelivered     bool                `json:"is_delivered"`
	DeliveredAt     *time.Time          `json:"delivered_at"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type ShippingAddress struct {
	State   string `json:"state"`
	Address string `json:"address"`
	City    string `json:"city"`
}

type OrderItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Brand     string          `json:"brand"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}
