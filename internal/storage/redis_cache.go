package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bahsim/catalog-import-service/internal/domain"
	"github.com/bahsim/catalog-import-service/pkg/logger"
)

const (
	productKeyPrefix = "product:"
	productIDSetKey  = "all_product_ids"
)

// ProductCache holds product JSON in Redis under product:<id> keys and
// tracks known ids in a set.
type ProductCache struct {
	client *redis.Client
}

func NewProductCache(ctx context.Context, addr string) (*ProductCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &ProductCache{client: client}, nil
}

func (c *ProductCache) Close() error {
	return c.client.Close()
}

func (c *ProductCache) Set(ctx context.Context, product domain.Product) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	if err := c.client.Set(ctx, productKeyPrefix+product.ID, payload, 0).Err(); err != nil {
		return fmt.Errorf("cache product: %w", err)
	}

	if err := c.client.SAdd(ctx, productIDSetKey, product.ID).Err(); err != nil {
		return fmt.Errorf("track product id: %w", err)
	}

	return nil
}

func (c *ProductCache) Get(ctx context.Context, id string) (*domain.Product, error) {
	payload, err := c.client.Get(ctx, productKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("read cached product: %w", err)
	}

	var product domain.Product
	if err := json.Unmarshal(payload, &product); err != nil {
		return nil, fmt.Errorf("unmarshal cached product: %w", err)
	}

	return &product, nil
}

// CachedStore decorates a ProductRepository with the Redis read cache.
// Cache failures are soft: reads fall through to the repository and
// writes still succeed.
type CachedStore struct {
	repo   domain.ProductRepository
	cache  *ProductCache
	logger *logger.Logger
}

func NewCachedStore(repo domain.ProductRepository, cache *ProductCache, log *logger.Logger) *CachedStore {
	return &CachedStore{
		repo:   repo,
		cache:  cache,
		logger: log,
	}
}

func (s *CachedStore) CreateProduct(ctx context.Context, product domain.Product) error {
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return err
	}

	if err := s.cache.Set(ctx, product); err != nil {
		s.logger.Warn(ctx, "Failed to warm product cache",
			"product_id", product.ID,
			"error", err,
		)
	}

	return nil
}

func (s *CachedStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.cache.Get(ctx, id)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, domain.ErrProductNotFound) {
		s.logger.Warn(ctx, "Product cache read failed",
			"product_id", id,
			"error", err,
		)
	}

	product, err = s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, *product); err != nil {
		s.logger.Warn(ctx, "Failed to backfill product cache",
			"product_id", id,
			"error", err,
		)
	}

	return product, nil
}

func (s *CachedStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}
