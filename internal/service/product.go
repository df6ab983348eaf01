package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storefront/internal/checkout"
	"github.com/flicky/storefront/internal/dto"
	"github.com/flicky/storefront/internal/model"
	"github.com/flicky/storefront/internal/repository"
)

// ProductService serves the catalog with a read-through Redis cache on
// single-product reads. A nil redis client disables caching.
type ProductService struct {
	productRepo repository.ProductRepository
	redisClient *redis.Client
	cacheTTL    time.Duration
	log         *slog.Logger
}

func NewProductService(productRepo repository.ProductRepository, redisClient *redis.Client, cacheTTL time.Duration, log *slog.Logger) *ProductService {
	return &ProductService{productRepo: productRepo, redisClient: redisClient, cacheTTL: cacheTTL, log: log}
}

func productCacheKey(id uuid.UUID) string {
	return "product:" + id.String()
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	if req.Price.IsNegative() {
		return nil, &checkout.ValidationError{Fields: []string{"price"}, Message: "Price must not be negative"}
	}
	product := &model.Product{
		Name:        req.Name,
		Brand:       req.Brand,
		Image:       req.Image,
		Category:    req.Category,
		Description: req.Description,
		Featured:    req.Featured,
		Price:       req.Price,
		Stock:       req.Stock,
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, persistence("create product", err)
	}
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	cacheKey := productCacheKey(id)

	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			var resp dto.ProductResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		case !errors.Is(err, redis.Nil):
			s.log.WarnContext(ctx, "product cache read failed", "product_id", id, "error", err)
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, persistence("get product", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	resp := toProductResponse(product)

	if s.redisClient != nil {
		if data, err := json.Marshal(resp); err == nil {
			if err := s.redisClient.Set(ctx, cacheKey, data, s.cacheTTL).Err(); err != nil {
				s.log.WarnContext(ctx, "product cache write failed", "product_id", id, "error", err)
			}
		}
	}

	return &resp, nil
}

func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) (*dto.ProductListResponse, error) {
	filter := model.ProductFilter{
		Search:   req.Search,
		Category: req.Category,
		Featured: req.Featured,
		Sort:     req.Sort,
		Limit:    req.Limit,
		Offset:   (req.Page - 1) * req.Limit,
	}
	products, total, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return nil, persistence("list products", err)
	}

	items := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, toProductResponse(&products[i]))
	}

	return &dto.ProductListResponse{Products: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, persistence("get product", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Brand != nil {
		product.Brand = *req.Brand
	}
	if req.Image != nil {
		product.Image = *req.Image
	}
	if req.Category != nil {
		product.Category = *req.Category
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Featured != nil {
		product.Featured = *req.Featured
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, persistence("update product", err)
	}

	s.invalidateCache(ctx, id)
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProductNotFound
		}
		return persistence("delete product", err)
	}
	s.invalidateCache(ctx, id)
	return nil
}

func (s *ProductService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Del(ctx, productCacheKey(id)).Err(); err != nil {
		s.log.WarnContext(ctx, "product cache invalidation failed", "product_id", id, "error", err)
	}
}

func toProductResponse(p *model.Product) dto.ProductResponse {
	return dto.ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Brand:       p.Brand,
		Image:       p.Image,
		Category:    p.Category,
		Description: p.Description,
		Featured:    p.Featured,
		Price:       p.Price,
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
