package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/storefront/internal/checkout"
	"github.com/flicky/storefront/internal/dto"
	"github.com/flicky/storefront/internal/middleware"
	"github.com/flicky/storefront/internal/model"
	"github.com/flicky/storefront/internal/service"
)

type OrderHandler struct {
	orderService       *service.OrderService
	fulfillmentService *service.FulfillmentService
	log                *slog.Logger
}

func NewOrderHandler(orderService *service.OrderService, fulfillmentService *service.FulfillmentService, log *slog.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, fulfillmentService: fulfillmentService, log: log}
}

func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req dto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.orderService.PlaceOrder(c.Request.Context(), middleware.GetUserID(c), toCheckoutInput(req))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	order, conf := result.Order, result.Confirmation
	resp := dto.PlaceOrderResponse{
		OrderID:              order.ID,
		Status:               order.Status,
		Message:              conf.Message,
		PaymentStatus:        conf.PaymentStatus,
		DeliveryInstructions: conf.DeliveryInstructions,
		Total:                order.Total,
	}
	if conf.CardNumber != "" {
		resp.CardDetails = &dto.CardSummary{CardNumber: conf.CardNumber, CardType: conf.CardType}
		if order.CardDetails != nil {
			resp.CardDetails.ExpiryDate = order.CardDetails.ExpiryDate
		}
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}

	c.JSON(http.StatusOK, dto.OrderListResponse{Orders: items, Total: len(items)})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	// a malformed id cannot name an existing order
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, service.ErrOrderNotFound)
		return
	}

	admin := middleware.GetUserRole(c) == model.RoleAdmin
	order, err := h.orderService.GetOrderForUser(c.Request.Context(), orderID, middleware.GetUserID(c), admin)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// UpdateStatus answers 202 when the command was queued for the worker and
// 200 with the updated order when it was applied in-process.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, service.ErrOrderNotFound)
		return
	}
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, queued, err := h.fulfillmentService.Request(c.Request.Context(), orderID, req.Action)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if queued {
		c.JSON(http.StatusAccepted, gin.H{"order_id": order.ID, "action": req.Action, "status": "queued"})
		return
	}

	view, err := h.orderService.GetOrder(c.Request.Context(), order.ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(view))
}

func toCheckoutInput(req dto.PlaceOrderRequest) checkout.Input {
	in := checkout.Input{Payment: checkout.PaymentInput{Method: req.PaymentMethod}}
	if a := req.ShippingAddress; a != nil {
		in.ShippingAddress = &checkout.ShippingAddressInput{State: a.State, Address: a.Address, City: a.City}
	}
	if card := req.CardDetails; card != nil {
		in.Payment.Card = &checkout.CardDetailsInput{
			CardNumber: card.CardNumber, ExpiryDate: card.ExpiryDate, CVV: card.CVV, CardType: card.CardType,
		}
	}
	return in
}

func toOrderResponse(view *service.OrderView) dto.OrderResponse {
	order := view.Order
	items := make([]dto.OrderItemResponse, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, dto.OrderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Brand:     item.Brand,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Subtotal:  item.Subtotal,
		})
	}

	resp := dto.OrderResponse{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		ShippingAddress: dto.ShippingAddress{
			State: order.ShippingAddress.State, Address: order.ShippingAddress.Address, City: order.ShippingAddress.City,
		},
		Items:       items,
		Subtotal:    view.Summary.Subtotal,
		Tax:         view.Summary.Tax,
		Shipping:    view.Summary.Shipping,
		GrandTotal:  view.Summary.GrandTotal,
		IsPaid:      order.IsPaid,
		PaidAt:      order.PaidAt,
		IsDelivered: order.IsDelivered,
		DeliveredAt: order.DeliveredAt,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	if card := order.CardDetails; card != nil {
		resp.CardDetails = &dto.CardSummary{
			CardNumber: checkout.Mask(card.Last4), CardType: card.CardType, ExpiryDate: card.ExpiryDate,
		}
	}
	return resp
}
