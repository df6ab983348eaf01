package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flicky/storefront/internal/model"
	"github.com/flicky/storefront/internal/repository"
)

type orderItemDoc struct {
	ID        string               `bson:"_id"`
	ProductID string               `bson:"product"`
	Quantity  int                  `bson:"quantity"`
	Price     primitive.Decimal128 `bson:"price"`
}

type shippingDoc struct {
	State   string `bson:"state"`
	Address string `bson:"address"`
	City    string `bson:"city"`
}

// cardDoc keeps only the last four digits under cardNumber.
type cardDoc struct {
	Last4      string `bson:"cardNumber"`
	ExpiryDate string `bson:"expiryDate"`
	CardType   string `bson:"cardType"`
}

type orderDoc struct {
	ID              string               `bson:"_id"`
	UserID          string               `bson:"userId"`
	Items           []orderItemDoc       `bson:"items"`
	ShippingAddress shippingDoc          `bson:"shippingAddress"`
	PaymentMethod   string               `bson:"paymentMethod"`
	CardDetails     *cardDoc             `bson:"cardDetails,omitempty"`
	Total           primitive.Decimal128 `bson:"total"`
	Status          string               `bson:"status"`
	IsPaid          bool                 `bson:"isPaid"`
	PaidAt          *time.Time           `bson:"paidAt,omitempty"`
	IsDelivered     bool                 `bson:"isDelivered"`
	DeliveredAt     *time.Time           `bson:"deliveredAt,omitempty"`
	CreatedAt       time.Time            `bson:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

func newOrderDoc(o *model.Order) (orderDoc, error) {
	total, err := toDecimal128(o.Total)
	if err != nil {
		return orderDoc{}, err
	}
	doc := orderDoc{
		ID: o.ID.String(), UserID: o.UserID.String(),
		ShippingAddress: shippingDoc(o.ShippingAddress),
		PaymentMethod:   string(o.PaymentMethod),
		Total:           total,
		Status:          string(o.Status),
		IsPaid:          o.IsPaid, PaidAt: o.PaidAt,
		IsDelivered: o.IsDelivered, DeliveredAt: o.DeliveredAt,
		CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
		Items: make([]orderItemDoc, 0, len(o.Items)),
	}
	if o.CardDetails != nil {
		c := cardDoc(*o.CardDetails)
		doc.CardDetails = &c
	}
	for _, it := range o.Items {
		price, err := toDecimal128(it.Price)
		if err != nil {
			return orderDoc{}, err
		}
		doc.Items = append(doc.Items, orderItemDoc{
			ID: it.ID.String(), ProductID: it.ProductID.String(), Quantity: it.Quantity, Price: price,
		})
	}
	return doc, nil
}

func (d orderDoc) model() (*model.Order, error) {
	total, err := fromDecimal128(d.Total)
	if err != nil {
		return nil, err
	}
	o := &model.Order{
		ID: parseID(d.ID), UserID: parseID(d.UserID),
		ShippingAddress: model.ShippingAddress(d.ShippingAddress),
		PaymentMethod:   model.PaymentMethod(d.PaymentMethod),
		Total:           total,
		Status:          model.OrderStatus(d.Status),
		IsPaid:          d.IsPaid, PaidAt: d.PaidAt,
		IsDelivered: d.IsDelivered, DeliveredAt: d.DeliveredAt,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	if d.CardDetails != nil {
		c := model.CardDetails(*d.CardDetails)
		o.CardDetails = &c
	}
	for _, it := range d.Items {
		price, err := fromDecimal128(it.Price)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, model.OrderItem{
			ID: parseID(it.ID), OrderID: o.ID, ProductID: parseID(it.ProductID),
			Quantity: it.Quantity, Price: price,
		})
	}
	return o, nil
}

type orderRepo struct{ coll *mongo.Collection }

func NewOrderRepository(db *mongo.Database) repository.OrderRepository {
	return &orderRepo{coll: db.Collection(ordersCollection)}
}

func (r *orderRepo) Create(ctx context.Context, order *model.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now().UTC()
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

	doc, err := newOrderDoc(order)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var doc orderDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return doc.model()
}

func (r *orderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"userId": userID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]model.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.model()
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, order *model.Order) error {
	order.UpdatedAt = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": order.ID.String()}, bson.M{"$set": bson.M{
		"status": string(order.Status), "isPaid": order.IsPaid, "paidAt": order.PaidAt,
		"isDelivered": order.IsDelivered, "deliveredAt": order.DeliveredAt,
		"updatedAt": order.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
