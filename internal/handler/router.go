package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/flicky/storefront/internal/middleware"
)

type Handlers struct {
	Auth    *AuthHandler
	Product *ProductHandler
	Cart    *CartHandler
	Order   *OrderHandler
	Health  *HealthHandler
}

// NewRouter wires the API routes. Incoming trace context is extracted before
// the request logger runs, so request logs carry the caller's trace id.
func NewRouter(h Handlers, service, jwtSecret string, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(service), middleware.RequestLogger(log))

	router.GET("/healthz", h.Health.Healthz)
	router.GET("/readyz", h.Health.Readyz)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)

		products := v1.Group("/products")
		products.GET("", h.Product.List)
		products.GET("/:id", h.Product.GetByID)

		admin := products.Group("", middleware.AuthMiddleware(jwtSecret), middleware.AdminOnly())
		admin.POST("", h.Product.Create)
		admin.PUT("/:id", h.Product.Update)
		admin.DELETE("/:id", h.Product.Delete)

		cart := v1.Group("/cart", middleware.AuthMiddleware(jwtSecret))
		cart.GET("", h.Cart.GetCart)
		cart.DELETE("", h.Cart.Clear)
		cart.POST("/items", h.Cart.AddItem)
		cart.PUT("/items/:id", h.Cart.UpdateItem)
		cart.DELETE("/items/:id", h.Cart.RemoveItem)

		orders := v1.Group("/orders", middleware.AuthMiddleware(jwtSecret))
		orders.POST("", h.Order.PlaceOrder)
		orders.GET("", h.Order.ListOrders)
		orders.GET("/:id", h.Order.GetOrder)
		orders.PATCH("/:id/status", middleware.AdminOnly(), h.Order.UpdateStatus)
	}

	return router
}
