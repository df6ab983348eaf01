package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storefront/internal/model"
)

var allTables = []string{"order_items", "orders", "cart_items", "carts", "products", "users"}

func seedProduct(t *testing.T, repo ProductRepository, name, category string, price float64) *model.Product {
	t.Helper()
	p := &model.Product{
		Name: name, Brand: "Acme", Category: category, Description: name + " description",
		Price: decimal.NewFromFloat(price), Stock: 10,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestUserRepo_CreateAndGet(t *testing.T) {
	cleanupTable(t, allTables...)

	repo := NewUserRepository(testPool)
	ctx := context.Background()

	user := &model.User{
		Email: "test@example.com", Password: "hashed",
		FirstName: "John", LastName: "Doe", Role: model.RoleCustomer,
	}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotEqual(t, uuid.Nil, user.ID)

	found, err := repo.GetByEmail(ctx, "test@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "John", byID.FirstName)

	missing, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	dup := &model.User{Email: "test@example.com", Password: "x", Role: model.RoleCustomer}
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrConflict)
}

func TestProductRepo_CRUD(t *testing.T) {
	cleanupTable(t, allTables...)

	repo := NewProductRepository(testPool)
	ctx := context.Background()

	product := seedProduct(t, repo, "Test", "tools", 29.99)
	assert.NotEqual(t, uuid.Nil, product.ID)

	found, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Test", found.Name)
	assert.True(t, found.Price.Equal(decimal.NewFromFloat(29.99)))

	product.Name = "Updated"
	require.NoError(t, repo.Update(ctx, product))

	found, _ = repo.GetByID(ctx, product.ID)
	assert.Equal(t, "Updated", found.Name)

	require.NoError(t, repo.Delete(ctx, product.ID))
	found, _ = repo.GetByID(ctx, product.ID)
	assert.Nil(t, found)

	assert.ErrorIs(t, repo.Delete(ctx, product.ID), ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, product), ErrNotFound)
}

func TestProductRepo_ListAndGetByIDs(t *testing.T) {
	cleanupTable(t, allTables...)

	repo := NewProductRepository(testPool)
	ctx := context.Background()

	lamp := seedProduct(t, repo, "Desk Lamp", "home", 40)
	chair := seedProduct(t, repo, "Office Chair", "home", 120)
	pen := seedProduct(t, repo, "Pen", "office", 2)

	products, total, err := repo.List(ctx, model.ProductFilter{Category: "home", Sort: model.SortPriceHigh, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, products, 2)
	assert.Equal(t, chair.ID, products[0].ID)
	assert.Equal(t, lamp.ID, products[1].ID)

	products, total, err = repo.List(ctx, model.ProductFilter{Search: "lamp", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, products, 1)
	assert.Equal(t, lamp.ID, products[0].ID)

	products, total, err = repo.List(ctx, model.ProductFilter{Sort: model.SortPriceLow, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, products, 1)
	assert.Equal(t, lamp.ID, products[0].ID)

	byID, err := repo.GetByIDs(ctx, []uuid.UUID{pen.ID, chair.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, byID, 2)
	assert.Equal(t, "Pen", byID[pen.ID].Name)
}

func TestCartRepo_Lines(t *testing.T) {
	cleanupTable(t, allTables...)

	productRepo := NewProductRepository(testPool)
	cartRepo := NewCartRepository(testPool)
	ctx := context.Background()
	userID := uuid.New()

	none, err := cartRepo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, none)

	product := seedProduct(t, productRepo, "P", "misc", 15)

	cart, err := cartRepo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	again, err := cartRepo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)

	first := &model.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: 2}
	require.NoError(t, cartRepo.AddItem(ctx, first))
	second := &model.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: 3}
	require.NoError(t, cartRepo.AddItem(ctx, second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)

	loaded, err := cartRepo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 5, loaded.Items[0].Quantity)

	require.NoError(t, cartRepo.SetItemQuantity(ctx, cart.ID, first.ID, 7))
	assert.ErrorIs(t, cartRepo.SetItemQuantity(ctx, cart.ID, uuid.New(), 1), ErrNotFound)

	require.NoError(t, cartRepo.DeleteItem(ctx, cart.ID, uuid.New()))
	require.NoError(t, cartRepo.DeleteItem(ctx, cart.ID, first.ID))

	require.NoError(t, cartRepo.AddItem(ctx, &model.CartItem{CartID: cart.ID, ProductID: uuid.New(), Quantity: 1}))
	require.NoError(t, cartRepo.ClearCart(ctx, cart.ID))
	loaded, err = cartRepo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Empty(t, loaded.Items)
}

func TestCartRepo_ConcurrentAddsAccumulate(t *testing.T) {
	cleanupTable(t, allTables...)

	cartRepo := NewCartRepository(testPool)
	ctx := context.Background()
	cart, err := cartRepo.GetOrCreate(ctx, uuid.New())
	require.NoError(t, err)
	productID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, cartRepo.AddItem(ctx, &model.CartItem{CartID: cart.ID, ProductID: productID, Quantity: 1}))
		}()
	}
	wg.Wait()

	loaded, err := cartRepo.GetByUserID(ctx, cart.UserID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 10, loaded.Items[0].Quantity)
}

func TestOrderRepo_CreateGetList(t *testing.T) {
	cleanupTable(t, allTables...)

	orderRepo := NewOrderRepository(testPool)
	ctx := context.Background()
	userID := uuid.New()
	productID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	older := &model.Order{
		UserID:          userID,
		Items:           []model.OrderItem{{ProductID: productID, Quantity: 2, Price: decimal.NewFromInt(25)}},
		ShippingAddress: model.ShippingAddress{State: "CA", Address: "1 Main St", City: "LA"},
		PaymentMethod:   model.PaymentCashOnDelivery,
		Total:           decimal.NewFromInt(50),
		Status:          model.OrderStatusPending,
		CreatedAt:       base,
	}
	require.NoError(t, orderRepo.Create(ctx, older))
	assert.NotEqual(t, uuid.Nil, older.ID)

	paidAt := base.Add(time.Minute)
	newer := &model.Order{
		UserID:          userID,
		ShippingAddress: model.ShippingAddress{State: "NY", Address: "2 Side St", City: "NYC"},
		PaymentMethod:   model.PaymentCard,
		CardDetails:     &model.CardDetails{Last4: "4242", ExpiryDate: "12/30", CardType: "credit"},
		Total:           decimal.Zero,
		Status:          model.OrderStatusPaid,
		IsPaid:          true,
		PaidAt:          &paidAt,
		CreatedAt:       base.Add(time.Minute),
	}
	require.NoError(t, orderRepo.Create(ctx, newer))

	found, err := orderRepo.GetByID(ctx, older.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, model.OrderStatusPending, found.Status)
	assert.Nil(t, found.CardDetails)
	require.Len(t, found.Items, 1)
	assert.True(t, found.Items[0].Price.Equal(decimal.NewFromInt(25)))

	found, err = orderRepo.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	require.NotNil(t, found.CardDetails)
	assert.Equal(t, "4242", found.CardDetails.Last4)
	assert.True(t, found.IsPaid)

	missing, err := orderRepo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	orders, err := orderRepo.ListByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, newer.ID, orders[0].ID)
	assert.Equal(t, older.ID, orders[1].ID)
	assert.Len(t, orders[1].Items, 1)

	empty, err := orderRepo.ListByUserID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOrderRepo_UpdateStatus(t *testing.T) {
	cleanupTable(t, allTables...)

	orderRepo := NewOrderRepository(testPool)
	ctx := context.Background()

	order := &model.Order{
		UserID:          uuid.New(),
		ShippingAddress: model.ShippingAddress{State: "CA", Address: "1 Main St", City: "LA"},
		PaymentMethod:   model.PaymentCashOnDelivery,
		Status:          model.OrderStatusPending,
	}
	require.NoError(t, orderRepo.Create(ctx, order))

	now := time.Now().UTC()
	order.Status = model.OrderStatusDelivered
	order.IsDelivered = true
	order.DeliveredAt = &now
	order.IsPaid = true
	order.PaidAt = &now
	require.NoError(t, orderRepo.UpdateStatus(ctx, order))

	found, err := orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDelivered, found.Status)
	assert.True(t, found.IsDelivered)
	assert.NotNil(t, found.DeliveredAt)

	ghost := &model.Order{ID: uuid.New(), Status: model.OrderStatusPaid}
	assert.ErrorIs(t, orderRepo.UpdateStatus(ctx, ghost), ErrNotFound)
}
