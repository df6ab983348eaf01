package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/flicky/storefront/internal/checkout"
	"github.com/flicky/storefront/internal/dto"
	"github.com/flicky/storefront/internal/lock"
	"github.com/flicky/storefront/internal/model"
	"github.com/flicky/storefront/internal/repository"
	"github.com/flicky/storefront/internal/repository/memory"
	"github.com/flicky/storefront/internal/service"
)

const testSecret = "handler-test-secret"

func init() { gin.SetMode(gin.TestMode) }

type apiFixture struct {
	router        *gin.Engine
	logs          *bytes.Buffer
	store         *memory.Store
	customer      *model.User
	customerToken string
	adminToken    string
	otherToken    string
}

func newAPIFixture(t *testing.T, checks ...ReadinessCheck) *apiFixture {
	t.Helper()
	return newAPIFixtureWithOrders(t, nil, checks...)
}

// newAPIFixtureWithOrders lets a test wrap the order store, e.g. to make it fail.
func newAPIFixtureWithOrders(t *testing.T, wrap func(repository.OrderRepository) repository.OrderRepository, checks ...ReadinessCheck) *apiFixture {
	t.Helper()
	logs := &bytes.Buffer{}
	log := slog.New(slog.NewJSONHandler(logs, nil))
	store := memory.New()
	locker := lock.NewLocal()
	orders := store.Orders()
	if wrap != nil {
		orders = wrap(orders)
	}

	authSvc := service.NewAuthService(store.Users(), testSecret, time.Hour)
	productSvc := service.NewProductService(store.Products(), nil, 0, log)
	cartSvc := service.NewCartService(store.Carts(), store.Products(), locker, log)
	orderSvc := service.NewOrderService(orders, store.Carts(), store.Products(), locker,
		checkout.SimulatedAuthorizer{}, nil, log)
	fulfillmentSvc := service.NewFulfillmentService(orders, locker, nil, log)

	router := NewRouter(Handlers{
		Auth:    NewAuthHandler(authSvc, log),
		Product: NewProductHandler(productSvc, log),
		Cart:    NewCartHandler(cartSvc, log),
		Order:   NewOrderHandler(orderSvc, fulfillmentSvc, log),
		Health:  NewHealthHandler(checks...),
	}, "storefront-test", testSecret, log)

	f := &apiFixture{router: router, logs: logs, store: store}
	f.customer, f.customerToken = f.user(t, authSvc, "shopper@example.com", model.RoleCustomer)
	_, f.adminToken = f.user(t, authSvc, "admin@example.com", model.RoleAdmin)
	_, f.otherToken = f.user(t, authSvc, "other@example.com", model.RoleCustomer)
	return f
}

func (f *apiFixture) user(t *testing.T, auth *service.AuthService, email, role string) (*model.User, string) {
	t.Helper()
	u := &model.User{Email: email, Password: "x", FirstName: "A", LastName: "B", Role: role}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	token, err := auth.GenerateToken(u)
	require.NoError(t, err)
	return u, token
}

func (f *apiFixture) product(t *testing.T, name, price string) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Price: decimal.RequireFromString(price), Stock: 5}
	require.NoError(t, f.store.Products().Create(context.Background(), p))
	return p
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestAuth_RegisterAndLogin(t *testing.T) {
	f := newAPIFixture(t)
	reg := dto.RegisterRequest{Email: "New@Example.com", Password: "password123", FirstName: "N", LastName: "U"}

	w := f.do(t, http.MethodPost, "/api/v1/auth/register", "", reg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[dto.AuthResponse](t, w)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "new@example.com", resp.User.Email)

	w = f.do(t, http.MethodPost, "/api/v1/auth/register", "", reg)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: "new@example.com", Password: "password123"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: "new@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{Email: "bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProducts(t *testing.T) {
	f := newAPIFixture(t)
	create := dto.CreateProductRequest{Name: "Desk Lamp", Description: "Warm light", Price: decimal.RequireFromString("40.00"), Stock: 3}

	w := f.do(t, http.MethodPost, "/api/v1/products", f.customerToken, create)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/products", f.adminToken, create)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.ProductResponse](t, w)

	w = f.do(t, http.MethodGet, "/api/v1/products/"+created.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Desk Lamp", decode[dto.ProductResponse](t, w).Name)

	w = f.do(t, http.MethodGet, "/api/v1/products?search=lamp&sort=price-low", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.ProductListResponse](t, w)
	assert.Equal(t, 1, list.Total)

	w = f.do(t, http.MethodGet, "/api/v1/products?sort=cheapest", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/products/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/products/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	negative := create
	negative.Price = decimal.NewFromInt(-1)
	w = f.do(t, http.MethodPost, "/api/v1/products", f.adminToken, negative)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"price"}, decode[dto.ErrorResponse](t, w).Fields)

	w = f.do(t, http.MethodDelete, "/api/v1/products/"+created.ID.String(), f.adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodDelete, "/api/v1/products/"+created.ID.String(), f.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCart(t *testing.T) {
	f := newAPIFixture(t)
	lamp := f.product(t, "Desk Lamp", "40.00")
	pen := f.product(t, "Pen", "1.50")

	w := f.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/cart", f.customerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[dto.CartResponse](t, w).Items)

	f.do(t, http.MethodPost, "/api/v1/cart/items", f.customerToken, dto.AddCartItemRequest{ProductID: lamp.ID, Quantity: 1})
	w = f.do(t, http.MethodPost, "/api/v1/cart/items", f.customerToken, dto.AddCartItemRequest{ProductID: lamp.ID, Quantity: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = f.do(t, http.MethodPost, "/api/v1/cart/items", f.customerToken, dto.AddCartItemRequest{ProductID: pen.ID, Quantity: 2})
	require.Equal(t, http.StatusCreated, w.Code)

	cart := decode[dto.CartResponse](t, w)
	require.Len(t, cart.Items, 2)
	assertAmount(t, "83", cart.Total)
	assertAmount(t, "6.64", cart.Tax)
	assertAmount(t, "89.64", cart.GrandTotal)

	var lampLine dto.CartItemResponse
	for _, it := range cart.Items {
		if it.ProductID == lamp.ID {
			lampLine = it
		}
	}
	assert.Equal(t, 2, lampLine.Quantity)
	require.NotNil(t, lampLine.Product)
	assert.Equal(t, "Desk Lamp", lampLine.Product.Name)

	w = f.do(t, http.MethodPost, "/api/v1/cart/items", f.customerToken, dto.AddCartItemRequest{ProductID: lamp.ID, Quantity: 0})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, service.ErrInvalidQuantity.Error(), decode[dto.ErrorResponse](t, w).Error)

	w = f.do(t, http.MethodPost, "/api/v1/cart/items", f.customerToken, dto.AddCartItemRequest{ProductID: uuid.New(), Quantity: 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	zero := 0
	w = f.do(t, http.MethodPut, "/api/v1/cart/items/"+lampLine.ID.String(), f.customerToken, dto.UpdateCartItemRequest{Quantity: &zero})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.CartResponse](t, w).Items, 1)

	w = f.do(t, http.MethodPut, "/api/v1/cart/items/"+uuid.NewString(), f.customerToken, dto.UpdateCartItemRequest{Quantity: &zero})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPut, "/api/v1/cart/items/"+uuid.NewString(), f.customerToken, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/cart/items/"+uuid.NewString(), f.customerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/cart", f.customerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cart = decode[dto.CartResponse](t, w)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Total.IsZero())
}

func cardOrder() dto.PlaceOrderRequest {
	return dto.PlaceOrderRequest{
		ShippingAddress: &dto.ShippingAddressRequest{State: "OR", Address: "12 Pine St", City: "Portland"},
		PaymentMethod:   "card",
		CardDetails:     &dto.CardDetailsRequest{CardNumber: "4242424242424242", ExpiryDate: "12/27", CVV: "123"},
	}
}

func TestOrders_PlaceAndRead(t *testing.T) {
	f := newAPIFixture(t)
	lamp := f.product(t, "Desk Lamp", "40.00")
	f.do(t, http.MethodPost, "/api/v1/cart/items", f.customerToken, dto.AddCartItemRequest{ProductID: lamp.ID, Quantity: 2})

	w := f.do(t, http.MethodPost, "/api/v1/orders", f.customerToken, cardOrder())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decode[dto.PlaceOrderResponse](t, w)
	assert.Equal(t, model.OrderStatusPaid, placed.Status)
	assert.Equal(t, service.PaymentStatusPaid, placed.PaymentStatus)
	require.NotNil(t, placed.CardDetails)
	assert.Equal(t, "****4242", placed.CardDetails.CardNumber)
	assert.Equal(t, "12/27", placed.CardDetails.ExpiryDate)
	assertAmount(t, "80", placed.Total)

	w = f.do(t, http.MethodGet, "/api/v1/cart", f.customerToken, nil)
	assert.Empty(t, decode[dto.CartResponse](t, w).Items)

	orderPath := "/api/v1/orders/" + placed.OrderID.String()
	w = f.do(t, http.MethodGet, orderPath, f.customerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	order := decode[dto.OrderResponse](t, w)
	assert.Equal(t, f.customer.ID, order.UserID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Desk Lamp", order.Items[0].Name)
	assertAmount(t, "40", order.Items[0].Price)
	assertAmount(t, "80", order.Items[0].Subtotal)
	assertAmount(t, "80", order.Subtotal)
	assertAmount(t, "6.4", order.Tax)
	assertAmount(t, "86.4", order.GrandTotal)
	assert.True(t, order.IsPaid)
	require.NotNil(t, order.CardDetails)
	assert.Equal(t, "****4242", order.CardDetails.CardNumber)
	assert.NotContains(t, w.Body.String(), "4242424242424242")

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, orderPath, f.otherToken, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, orderPath, f.adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/orders/garbage", f.customerToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), f.customerToken, nil).Code)

	w = f.do(t, http.MethodGet, "/api/v1/orders", f.customerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[dto.OrderListResponse](t, w).Total)

	w = f.do(t, http.MethodGet, "/api/v1/orders", f.otherToken, nil)
	assert.Equal(t, 0, decode[dto.OrderListResponse](t, w).Total)
}

func TestOrders_CashOnDelivery(t *testing.T) {
	f := newAPIFixture(t)
	req := dto.PlaceOrderRequest{
		ShippingAddress: &dto.ShippingAddressRequest{State: "OR", Address: "12 Pine St", City: "Portland"},
		PaymentMethod:   "cash_on_delivery",
	}

	w := f.do(t, http.MethodPost, "/api/v1/orders", f.customerToken, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decode[dto.PlaceOrderResponse](t, w)
	assert.Equal(t, model.OrderStatusPending, placed.Status)
	assert.Equal(t, service.MsgOrderPlacedCOD, placed.Message)
	assert.Equal(t, service.DeliveryNoteCOD, placed.DeliveryInstructions)
	assert.Nil(t, placed.CardDetails)
}

func TestOrders_ValidationFailures(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		mutate func(*dto.PlaceOrderRequest)
		field  string
	}{
		{name: "missing address", mutate: func(r *dto.PlaceOrderRequest) { r.ShippingAddress = nil }, field: "shipping_address"},
		{name: "missing city", mutate: func(r *dto.PlaceOrderRequest) { r.ShippingAddress.City = "" }, field: "shipping_address.city"},
		{name: "unknown method", mutate: func(r *dto.PlaceOrderRequest) { r.PaymentMethod = "bitcoin" }, field: "payment_method"},
		{name: "missing cvv", mutate: func(r *dto.PlaceOrderRequest) { r.CardDetails.CVV = "" }, field: "card_details.cvv"},
		{name: "short card", mutate: func(r *dto.PlaceOrderRequest) { r.CardDetails.CardNumber = "4242" }, field: "card_details.card_number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cardOrder()
			tt.mutate(&req)
			w := f.do(t, http.MethodPost, "/api/v1/orders", f.customerToken, req)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode[dto.ErrorResponse](t, w).Fields, tt.field)
		})
	}

	w := f.do(t, http.MethodGet, "/api/v1/orders", f.customerToken, nil)
	assert.Equal(t, 0, decode[dto.OrderListResponse](t, w).Total)
}

func TestOrders_UpdateStatus(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/orders", f.customerToken, cardOrder())
	require.Equal(t, http.StatusCreated, w.Code)
	statusPath := "/api/v1/orders/" + decode[dto.PlaceOrderResponse](t, w).OrderID.String() + "/status"

	w = f.do(t, http.MethodPatch, statusPath, f.customerToken, dto.UpdateOrderStatusRequest{Action: model.ActionShip})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPatch, statusPath, f.adminToken, dto.UpdateOrderStatusRequest{Action: model.ActionShip})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.OrderStatusShipped, decode[dto.OrderResponse](t, w).Status)

	w = f.do(t, http.MethodPatch, statusPath, f.adminToken, dto.UpdateOrderStatusRequest{Action: model.ActionCancel})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPatch, statusPath, f.adminToken, dto.UpdateOrderStatusRequest{Action: "refund"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"action"}, decode[dto.ErrorResponse](t, w).Fields)

	w = f.do(t, http.MethodPatch, "/api/v1/orders/"+uuid.NewString()+"/status", f.adminToken, dto.UpdateOrderStatusRequest{Action: model.ActionShip})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	ok := ReadinessCheck{Name: "postgres", Ping: func(context.Context) error { return nil }}
	down := ReadinessCheck{Name: "redis", Ping: func(context.Context) error { return errors.New("dial tcp: refused") }}

	f := newAPIFixture(t, ok)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", nil).Code)
	w := f.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "connected", decode[map[string]string](t, w)["postgres"])

	f = newAPIFixture(t, ok, down)
	w = f.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "unavailable", body["redis"])
	assert.Equal(t, "connected", body["postgres"])
	assert.Equal(t, "error", body["status"])
}

func TestOrders_ValidationFieldsUseRequestKeys(t *testing.T) {
	f := newAPIFixture(t)
	body := map[string]any{
		"shipping_address": map[string]string{"state": "OR", "address": "12 Pine St"},
		"payment_method":   "cash_on_delivery",
	}

	w := f.do(t, http.MethodPost, "/api/v1/orders", f.customerToken, body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"shipping_address.city"}, decode[dto.ErrorResponse](t, w).Fields)

	body["payment_method"] = "card"
	body["shipping_address"] = map[string]string{"state": "OR", "address": "12 Pine St", "city": "Portland"}
	body["card_details"] = map[string]string{"card_number": "4242424242424242"}
	w = f.do(t, http.MethodPost, "/api/v1/orders", f.customerToken, body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"card_details.expiry_date", "card_details.cvv"}, decode[dto.ErrorResponse](t, w).Fields)
}

type failingOrderRepo struct {
	repository.OrderRepository
	err error
}

func (r failingOrderRepo) Create(context.Context, *model.Order) error { return r.err }

func (r failingOrderRepo) ListByUserID(context.Context, uuid.UUID) ([]model.Order, error) {
	return nil, r.err
}

func TestOrders_StoreFailureIsOpaque(t *testing.T) {
	cause := errors.New("pg: connection refused")
	f := newAPIFixtureWithOrders(t, func(orders repository.OrderRepository) repository.OrderRepository {
		return failingOrderRepo{OrderRepository: orders, err: cause}
	})
	lamp := f.product(t, "Desk Lamp", "40.00")
	f.do(t, http.MethodPost, "/api/v1/cart/items", f.customerToken, dto.AddCartItemRequest{ProductID: lamp.ID, Quantity: 1})

	for _, tc := range []struct {
		method string
		body   any
		op     string
	}{
		{method: http.MethodPost, body: cardOrder(), op: "create order"},
		{method: http.MethodGet, op: "list orders"},
	} {
		t.Run(tc.op, func(t *testing.T) {
			w := f.do(t, tc.method, "/api/v1/orders", f.customerToken, tc.body)
			require.Equal(t, http.StatusInternalServerError, w.Code)
			assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
			assert.NotContains(t, w.Body.String(), cause.Error())
			assert.NotContains(t, w.Body.String(), tc.op)

			assert.Contains(t, f.logs.String(), cause.Error())
			assert.Contains(t, f.logs.String(), tc.op)
		})
	}

	// the cart survives a failed placement
	w := f.do(t, http.MethodGet, "/api/v1/cart", f.customerToken, nil)
	assert.Len(t, decode[dto.CartResponse](t, w).Items, 1)
}

func TestRouter_ContinuesIncomingTrace(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	otel.SetTextMapPropagator(propagation.TraceContext{})

	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
}
