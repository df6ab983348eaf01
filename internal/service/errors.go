package service

import (
	"errors"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/flicky/storefront/internal/service")

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrCartNotFound       = errors.New("cart not found")
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAccessDenied  = errors.New("access denied")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrPaymentDeclined    = errors.New("payment declined")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// PersistenceError wraps a store failure. Callers log it and report an
// opaque server error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
