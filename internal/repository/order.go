package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/storefront/internal/model"
)

type OrderRepository interface {
	// Create stores the order and its items atomically. ID and CreatedAt are
	// kept when already set.
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// ListByUserID returns the user's orders, newest first.
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	// UpdateStatus persists the status, paid and delivered fields of order.
	UpdateStatus(ctx context.Context, order *model.Order) error
}

const orderColumns = `id, user_id, shipping_state, shipping_address, shipping_city, payment_method,
	card_last4, card_expiry, card_type, total, status, is_paid, paid_at, is_delivered, delivered_at,
	created_at, updated_at`

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

func (r *pgOrderRepo) Create(ctx context.Context, order *model.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var last4, expiry, cardType *string
	if c := order.CardDetails; c != nil {
		last4, expiry, cardType = &c.Last4, &c.ExpiryDate, &c.CardType
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         COALESCE($16, NOW()), NOW())
		 RETURNING created_at, updated_at`,
		order.ID, order.UserID,
		order.ShippingAddress.State, order.ShippingAddress.Address, order.ShippingAddress.City,
		string(order.PaymentMethod), last4, expiry, cardType,
		order.Total, string(order.Status), order.IsPaid, order.PaidAt, order.IsDelivered, order.DeliveredAt,
		nullTime(order.CreatedAt),
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = order.ID
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, price, position)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price, i,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.itemsFor(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *pgOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []model.Order
		ids    []uuid.UUID
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *pgOrderRepo) itemsFor(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]model.OrderItem, error) {
	out := make(map[uuid.UUID][]model.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, quantity, price FROM order_items
		 WHERE order_id = ANY($1) ORDER BY order_id, position`, orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out[item.OrderID] = append(out[item.OrderID], item)
	}
	return out, rows.Err()
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, order *model.Order) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE orders SET status = $2, is_paid = $3, paid_at = $4, is_delivered = $5, delivered_at = $6, updated_at = NOW()
		 WHERE id = $1 RETURNING updated_at`,
		order.ID, string(order.Status), order.IsPaid, order.PaidAt, order.IsDelivered, order.DeliveredAt,
	).Scan(&order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                       model.Order
		method, status          string
		last4, expiry, cardType *string
	)
	err := row.Scan(&o.ID, &o.UserID,
		&o.ShippingAddress.State, &o.ShippingAddress.Address, &o.ShippingAddress.City,
		&method, &last4, &expiry, &cardType,
		&o.Total, &status, &o.IsPaid, &o.PaidAt, &o.IsDelivered, &o.DeliveredAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = model.PaymentMethod(method)
	o.Status = model.OrderStatus(status)
	if last4 != nil {
		o.CardDetails = &model.CardDetails{Last4: *last4, ExpiryDate: deref(expiry), CardType: deref(cardType)}
	}
	return &o, nil
}
