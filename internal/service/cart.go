package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flicky/storefront/internal/lock"
	"github.com/flicky/storefront/internal/model"
	"github.com/flicky/storefront/internal/pricing"
	"github.com/flicky/storefront/internal/repository"
)

// CartLineView is a cart line joined with the product it references.
// Product is nil when the product has since been deleted.
type CartLineView struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Product   *model.Product
	Quantity  int
	Subtotal  decimal.Decimal
}

type CartView struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Lines      []CartLineView
	Total      decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
	UpdatedAt  time.Time
}

// CartService owns the per-user cart. Every mutation runs under the user's
// cart lock and returns a freshly priced view.
type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	locker      lock.Locker
	log         *slog.Logger
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, locker lock.Locker, log *slog.Logger) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo, locker: locker, log: log}
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, persistence("get cart", err)
	}
	return s.view(ctx, cart)
}

func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartView, error) {
	ctx, span := tracer.Start(ctx, "CartService.AddItem", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("product.id", productID.String()),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, persistence("get product", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	var cart *model.Cart
	err = s.withCartLock(ctx, userID, func() error {
		c, err := s.cartRepo.GetOrCreate(ctx, userID)
		if err != nil {
			return persistence("get cart", err)
		}
		item := &model.CartItem{CartID: c.ID, ProductID: productID, Quantity: quantity}
		if err := s.cartRepo.AddItem(ctx, item); err != nil {
			return persistence("add cart item", err)
		}
		cart, err = s.reload(ctx, userID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.view(ctx, cart)
}

// UpdateItem sets a line's quantity. A quantity of zero or less removes the line.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*CartView, error) {
	ctx, span := tracer.Start(ctx, "CartService.UpdateItem", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("cart_item.id", itemID.String()),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	var cart *model.Cart
	err := s.withCartLock(ctx, userID, func() error {
		c, err := s.cartRepo.GetByUserID(ctx, userID)
		if err != nil {
			return persistence("get cart", err)
		}
		if c == nil {
			return ErrCartNotFound
		}
		if c.Item(itemID) == nil {
			return ErrCartItemNotFound
		}

		if quantity <= 0 {
			if err := s.cartRepo.DeleteItem(ctx, c.ID, itemID); err != nil {
				return persistence("delete cart item", err)
			}
		} else if err := s.cartRepo.SetItemQuantity(ctx, c.ID, itemID, quantity); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCartItemNotFound
			}
			return persistence("update cart item", err)
		}
		cart, err = s.reload(ctx, userID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.view(ctx, cart)
}

// RemoveItem deletes a line. Removing a line that is not in the cart is not an error.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartView, error) {
	ctx, span := tracer.Start(ctx, "CartService.RemoveItem", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("cart_item.id", itemID.String()),
	))
	defer span.End()

	var cart *model.Cart
	err := s.withCartLock(ctx, userID, func() error {
		c, err := s.cartRepo.GetByUserID(ctx, userID)
		if err != nil {
			return persistence("get cart", err)
		}
		if c == nil {
			return ErrCartNotFound
		}
		if err := s.cartRepo.DeleteItem(ctx, c.ID, itemID); err != nil {
			return persistence("delete cart item", err)
		}
		cart, err = s.reload(ctx, userID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	ctx, span := tracer.Start(ctx, "CartService.Clear", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	var cart *model.Cart
	err := s.withCartLock(ctx, userID, func() error {
		c, err := s.cartRepo.GetOrCreate(ctx, userID)
		if err != nil {
			return persistence("get cart", err)
		}
		if err := s.cartRepo.ClearCart(ctx, c.ID); err != nil {
			return persistence("clear cart", err)
		}
		c.Items = nil
		cart = c
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *CartService) withCartLock(ctx context.Context, userID uuid.UUID, fn func() error) error {
	release, err := s.locker.Acquire(ctx, lock.CartKey(userID.String()))
	if err != nil {
		return fmt.Errorf("lock cart: %w", err)
	}
	defer release()
	return fn()
}

func (s *CartService) reload(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.cartRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, persistence("get cart", err)
	}
	if cart == nil {
		return nil, ErrCartNotFound
	}
	return cart, nil
}

// view joins every line with its current product and prices the cart.
func (s *CartService) view(ctx context.Context, cart *model.Cart) (*CartView, error) {
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, persistence("get cart products", err)
	}

	v := &CartView{ID: cart.ID, UserID: cart.UserID, UpdatedAt: cart.UpdatedAt, Lines: make([]CartLineView, 0, len(cart.Items))}
	lines := make([]pricing.Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		product := products[item.ProductID]
		line := pricing.LineFor(item, product)
		lines = append(lines, line)
		v.Lines = append(v.Lines, CartLineView{
			ID:        item.ID,
			ProductID: item.ProductID,
			Product:   product,
			Quantity:  item.Quantity,
			Subtotal:  pricing.LineSubtotal(line),
		})
	}
	v.Total = pricing.CartTotal(lines)
	v.Tax = pricing.Tax(v.Total)
	v.GrandTotal = pricing.GrandTotal(v.Total)
	return v, nil
}
