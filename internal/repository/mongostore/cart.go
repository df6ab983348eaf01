package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flicky/storefront/internal/model"
	"github.com/flicky/storefront/internal/repository"
)

type cartItemDoc struct {
	ID        string    `bson:"_id"`
	ProductID string    `bson:"productId"`
	Quantity  int       `bson:"quantity"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type cartDoc struct {
	ID        string        `bson:"_id"`
	UserID    string        `bson:"userId"`
	Items     []cartItemDoc `bson:"items"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d cartDoc) model() *model.Cart {
	cart := &model.Cart{
		ID: parseID(d.ID), UserID: parseID(d.UserID),
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	for _, it := range d.Items {
		cart.Items = append(cart.Items, model.CartItem{
			ID: parseID(it.ID), CartID: cart.ID, ProductID: parseID(it.ProductID),
			Quantity: it.Quantity, CreatedAt: it.CreatedAt, UpdatedAt: it.UpdatedAt,
		})
	}
	return cart
}

type cartRepo struct{ coll *mongo.Collection }

func NewCartRepository(db *mongo.Database) repository.CartRepository {
	return &cartRepo{coll: db.Collection(cartsCollection)}
}

func (r *cartRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	var doc cartDoc
	if err := r.coll.FindOne(ctx, bson.M{"userId": userID.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return doc.model(), nil
}

func (r *cartRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	now := time.Now().UTC()
	update := bson.M{"$setOnInsert": bson.M{
		"_id": uuid.NewString(), "userId": userID.String(), "items": bson.A{},
		"createdAt": now, "updatedAt": now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc cartDoc
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"userId": userID.String()}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// A concurrent upsert won the unique index; the cart exists now.
		err = r.coll.FindOne(ctx, bson.M{"userId": userID.String()}).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return doc.model(), nil
}

func (r *cartRepo) AddItem(ctx context.Context, item *model.CartItem) error {
	cartID := item.CartID.String()
	productID := item.ProductID.String()
	now := time.Now().UTC()

	// Increment an existing line, otherwise push a new one. The $ne guard
	// keeps two racing pushes from creating duplicate lines; the loser
	// retries the increment.
	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.coll.UpdateOne(ctx,
			bson.M{"_id": cartID, "items.productId": productID},
			bson.M{
				"$inc": bson.M{"items.$.quantity": item.Quantity},
				"$set": bson.M{"items.$.updatedAt": now, "updatedAt": now},
			},
		)
		if err != nil {
			return fmt.Errorf("add cart item: %w", err)
		}
		if res.MatchedCount > 0 {
			return r.reload(ctx, item)
		}

		res, err = r.coll.UpdateOne(ctx,
			bson.M{"_id": cartID, "items.productId": bson.M{"$ne": productID}},
			bson.M{
				"$push": bson.M{"items": cartItemDoc{
					ID: uuid.NewString(), ProductID: productID, Quantity: item.Quantity,
					CreatedAt: now, UpdatedAt: now,
				}},
				"$set": bson.M{"updatedAt": now},
			},
		)
		if err != nil {
			return fmt.Errorf("add cart item: %w", err)
		}
		if res.MatchedCount > 0 {
			return r.reload(ctx, item)
		}
	}
	return fmt.Errorf("add cart item: cart %s not found", cartID)
}

// reload copies the stored line for item.ProductID back into item.
func (r *cartRepo) reload(ctx context.Context, item *model.CartItem) error {
	var doc cartDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": item.CartID.String()}).Decode(&doc); err != nil {
		return fmt.Errorf("reload cart: %w", err)
	}
	line := doc.model().ItemForProduct(item.ProductID)
	if line == nil {
		return fmt.Errorf("reload cart: line for product %s missing", item.ProductID)
	}
	*item = *line
	return nil
}

func (r *cartRepo) SetItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) error {
	now := time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": cartID.String(), "items._id": itemID.String()},
		bson.M{"$set": bson.M{"items.$.quantity": quantity, "items.$.updatedAt": now, "updatedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *cartRepo) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": cartID.String()},
		bson.M{
			"$pull": bson.M{"items": bson.M{"_id": itemID.String()}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (r *cartRepo) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": cartID.String()},
		bson.M{"$set": bson.M{"items": bson.A{}, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
