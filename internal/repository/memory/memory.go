// Package memory is a process-local store used for development and tests.
// Every read hands out copies so callers cannot mutate stored state.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/storefront/internal/model"
	"github.com/flicky/storefront/internal/repository"
)

// Store holds every collection behind one mutex.
type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]model.User
	products map[uuid.UUID]model.Product
	carts    map[uuid.UUID]*model.Cart // keyed by user id
	orders   map[uuid.UUID]model.Order
	now      func() time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]model.User),
		products: make(map[uuid.UUID]model.Product),
		carts:    make(map[uuid.UUID]*model.Cart),
		orders:   make(map[uuid.UUID]model.Order),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() repository.UserRepository       { return userRepo{s} }
func (s *Store) Products() repository.ProductRepository { return productRepo{s} }
func (s *Store) Carts() repository.CartRepository       { return cartRepo{s} }
func (s *Store) Orders() repository.OrderRepository     { return orderRepo{s} }

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrConflict
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = r.s.now()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

type productRepo struct{ s *Store }

func (r productRepo) Create(_ context.Context, product *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	product.CreatedAt = r.s.now()
	product.UpdatedAt = product.CreatedAt
	r.s.products[product.ID] = *product
	return nil
}

func (r productRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r productRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[uuid.UUID]*model.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (r productRepo) List(_ context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	r.s.mu.RLock()
	var matched []model.Product
	search := strings.ToLower(f.Search)
	for _, p := range r.s.products {
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Featured && !p.Featured {
			continue
		}
		matched = append(matched, p)
	}
	r.s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch f.Sort {
		case model.SortPriceLow:
			if !a.Price.Equal(b.Price) {
				return a.Price.LessThan(b.Price)
			}
		case model.SortPriceHigh:
			if !a.Price.Equal(b.Price) {
				return a.Price.GreaterThan(b.Price)
			}
		case model.SortName:
			return a.Name < b.Name
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	total := len(matched)
	start := min(f.Offset, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return matched[start:end], total, nil
}

func (r productRepo) Update(_ context.Context, product *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.products[product.ID]
	if !ok {
		return repository.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = r.s.now()
	r.s.products[product.ID] = *product
	return nil
}

func (r productRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

type cartRepo struct{ s *Store }

func copyCart(c *model.Cart) *model.Cart {
	out := *c
	out.Items = append([]model.CartItem(nil), c.Items...)
	return &out
}

func (r cartRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.carts[userID]
	if !ok {
		return nil, nil
	}
	return copyCart(c), nil
}

func (r cartRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[userID]
	if !ok {
		now := r.s.now()
		c = &model.Cart{ID: uuid.New(), UserID: userID, CreatedAt: now, UpdatedAt: now}
		r.s.carts[userID] = c
	}
	return copyCart(c), nil
}

// byID must be called with the lock held.
func (r cartRepo) byID(cartID uuid.UUID) *model.Cart {
	for _, c := range r.s.carts {
		if c.ID == cartID {
			return c
		}
	}
	return nil
}

func (r cartRepo) AddItem(_ context.Context, item *model.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.byID(item.CartID)
	if c == nil {
		return repository.ErrNotFound
	}
	now := r.s.now()
	c.UpdatedAt = now
	if line := c.ItemForProduct(item.ProductID); line != nil {
		line.Quantity += item.Quantity
		line.UpdatedAt = now
		*item = *line
		return nil
	}
	item.ID = uuid.New()
	item.CreatedAt, item.UpdatedAt = now, now
	c.Items = append(c.Items, *item)
	return nil
}

func (r cartRepo) SetItemQuantity(_ context.Context, cartID, itemID uuid.UUID, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.byID(cartID)
	if c == nil {
		return repository.ErrNotFound
	}
	line := c.Item(itemID)
	if line == nil {
		return repository.ErrNotFound
	}
	now := r.s.now()
	line.Quantity = quantity
	line.UpdatedAt = now
	c.UpdatedAt = now
	return nil
}

func (r cartRepo) DeleteItem(_ context.Context, cartID, itemID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.byID(cartID)
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			break
		}
	}
	c.UpdatedAt = r.s.now()
	return nil
}

func (r cartRepo) ClearCart(_ context.Context, cartID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c := r.byID(cartID); c != nil {
		c.Items = nil
		c.UpdatedAt = r.s.now()
	}
	return nil
}

type orderRepo struct{ s *Store }

func copyOrder(o model.Order) model.Order {
	o.Items = append([]model.OrderItem(nil), o.Items...)
	if o.CardDetails != nil {
		c := *o.CardDetails
		o.CardDetails = &c
	}
	return o
}

func (r orderRepo) Create(_ context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := r.s.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	r.s.orders[order.ID] = copyOrder(*order)
	return nil
}

func (r orderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	o = copyOrder(o)
	return &o, nil
}

func (r orderRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	r.s.mu.RLock()
	var out []model.Order
	for _, o := range r.s.orders {
		if o.UserID == userID {
			out = append(out, copyOrder(o))
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r orderRepo) UpdateStatus(_ context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[order.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Status = order.Status
	stored.IsPaid, stored.PaidAt = order.IsPaid, order.PaidAt
	stored.IsDelivered, stored.DeliveredAt = order.IsDelivered, order.DeliveredAt
	stored.UpdatedAt = r.s.now()
	order.UpdatedAt = stored.UpdatedAt
	r.s.orders[order.ID] = stored
	return nil
}
