package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/bahsim/catalog-import-service/internal/domain"
	"github.com/bahsim/catalog-import-service/internal/pubsub"
	"github.com/bahsim/catalog-import-service/pkg/logger"
)

var (
	ErrMissingProductFields = errors.New("title, description, price, and count are required")
	ErrEmptyProductText     = errors.New("title and description cannot be empty")
	ErrInvalidProductPrice  = errors.New("price must be a positive number")
	ErrInvalidProductCount  = errors.New("count must be a non-negative integer")
)

// CreateProductInput uses pointers so an absent field is distinguishable
// from a zero value.
type CreateProductInput struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Count       *float64 `json:"count"`
}

type ProductService interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type productService struct {
	repo   domain.ProductRepository
	topic  pubsub.Publisher
	logger *logger.Logger
}

func NewProductService(repo domain.ProductRepository, topic pubsub.Publisher, log *logger.Logger) ProductService {
	return &productService{
		repo:   repo,
		topic:  topic,
		logger: log,
	}
}

// CreateProduct is the direct creation path: both table halves go through
// the repository's guarded transaction, so a duplicate id is rejected
// rather than overwritten.
func (s *productService) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	if input.Title == nil || input.Description == nil || input.Price == nil || input.Count == nil {
		return nil, ErrMissingProductFields
	}

	title := strings.TrimSpace(*input.Title)
	description := strings.TrimSpace(*input.Description)
	if title == "" || description == "" {
		return nil, ErrEmptyProductText
	}

	if *input.Price <= 0 {
		return nil, ErrInvalidProductPrice
	}

	count := *input.Count
	if count < 0 || math.Trunc(count) != count {
		return nil, ErrInvalidProductCount
	}

	product := domain.Product{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Price:       *input.Price,
		Count:       int(count),
	}

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		s.logger.Error(ctx, "Failed to create product",
			"product_id", product.ID,
			"error", err,
		)
		return nil, err
	}

	// The write has committed; a notification failure is logged rather
	// than turned into a misleading creation error.
	if err := s.publishCreated(ctx, product); err != nil {
		s.logger.Error(ctx, "Failed to publish creation notification",
			"product_id", product.ID,
			"error", err,
		)
	}

	s.logger.Info(ctx, "Product created",
		"product_id", product.ID,
		"title", product.Title,
	)

	return &product, nil
}

func (s *productService) publishCreated(ctx context.Context, product domain.Product) error {
	payload, err := json.Marshal(domain.NotificationEvent{
		Message: domain.ProductCreatedMessage,
		Product: product,
	})
	if err != nil {
		return err
	}

	return s.topic.Publish(ctx, string(payload), pubsub.Attributes{
		"price": product.Price,
	})
}

func (s *productService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrProductNotFound) {
			s.logger.Error(ctx, "Failed to get product",
				"product_id", id,
				"error", err,
			)
		}
		return nil, err
	}

	return product, nil
}

func (s *productService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		s.logger.Error(ctx, "Failed to list products",
			"error", err,
		)
		return nil, err
	}

	return products, nil
}
