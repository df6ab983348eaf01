package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/storefront/internal/checkout"
	"github.com/flicky/storefront/internal/dto"
	"github.com/flicky/storefront/internal/lock"
	"github.com/flicky/storefront/internal/service"
)

var statusBySentinel = []struct {
	err    error
	status int
}{
	{service.ErrInvalidQuantity, http.StatusBadRequest},
	{service.ErrProductNotFound, http.StatusNotFound},
	{service.ErrCartNotFound, http.StatusNotFound},
	{service.ErrCartItemNotFound, http.StatusNotFound},
	{service.ErrOrderNotFound, http.StatusNotFound},
	{service.ErrOrderAccessDenied, http.StatusForbidden},
	{service.ErrInvalidTransition, http.StatusConflict},
	{service.ErrPaymentDeclined, http.StatusPaymentRequired},
	{service.ErrUserAlreadyExists, http.StatusConflict},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{lock.ErrLockTimeout, http.StatusServiceUnavailable},
}

// respondError writes the client-facing form of err. Unrecognized errors are
// logged with their cause and reported as an opaque 500.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: verr.Message, Fields: verr.Fields})
		return
	}
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			c.JSON(s.status, dto.ErrorResponse{Error: s.err.Error()})
			return
		}
	}

	log.ErrorContext(c.Request.Context(), "request failed",
		"method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
}
