package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flicky/storefront/internal/model"
	"github.com/flicky/storefront/internal/repository"
)

type productDoc struct {
	ID          string               `bson:"_id"`
	Name        string               `bson:"name"`
	Brand       string               `bson:"brand"`
	Image       string               `bson:"image"`
	Category    string               `bson:"category"`
	Description string               `bson:"description"`
	Featured    bool                 `bson:"featured"`
	Price       primitive.Decimal128 `bson:"price"`
	Stock       int                  `bson:"stock"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func newProductDoc(p *model.Product) (productDoc, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDoc{}, err
	}
	return productDoc{
		ID: p.ID.String(), Name: p.Name, Brand: p.Brand, Image: p.Image, Category: p.Category,
		Description: p.Description, Featured: p.Featured, Price: price, Stock: p.Stock,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}, nil
}

func (d productDoc) model() (*model.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return nil, err
	}
	return &model.Product{
		ID: parseID(d.ID), Name: d.Name, Brand: d.Brand, Image: d.Image, Category: d.Category,
		Description: d.Description, Featured: d.Featured, Price: price, Stock: d.Stock,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}, nil
}

type productRepo struct{ coll *mongo.Collection }

func NewProductRepository(db *mongo.Database) repository.ProductRepository {
	return &productRepo{coll: db.Collection(productsCollection)}
}

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now

	doc, err := newProductDoc(product)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var doc productDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return doc.model()
}

func (r *productRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	out := make(map[uuid.UUID]*model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	products, err := r.find(ctx, bson.M{"_id": bson.M{"$in": keys}}, options.Find())
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func productSort(sort string) bson.D {
	switch sort {
	case model.SortPriceLow:
		return bson.D{{Key: "price", Value: 1}, {Key: "createdAt", Value: -1}}
	case model.SortPriceHigh:
		return bson.D{{Key: "price", Value: -1}, {Key: "createdAt", Value: -1}}
	case model.SortName:
		return bson.D{{Key: "name", Value: 1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}}
	}
}

func productFilter(f model.ProductFilter) bson.M {
	filter := bson.M{}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"description": re}}
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Featured {
		filter["featured"] = true
	}
	return filter
}

func (r *productRepo) List(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	filter := productFilter(f)
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	opts := options.Find().SetSort(productSort(f.Sort)).SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	products, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, int(total), nil
}

func (r *productRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Product, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	products := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.model()
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

func (r *productRepo) Update(ctx context.Context, product *model.Product) error {
	price, err := toDecimal128(product.Price)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	product.UpdatedAt = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": product.ID.String()}, bson.M{"$set": bson.M{
		"name": product.Name, "brand": product.Brand, "image": product.Image,
		"category": product.Category, "description": product.Description,
		"featured": product.Featured, "price": price, "stock": product.Stock,
		"updatedAt": product.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *productRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
