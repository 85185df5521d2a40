package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/bahsim/catalog-import-service/internal/domain"
	"github.com/bahsim/catalog-import-service/internal/pubsub"
	"github.com/bahsim/catalog-import-service/pkg/logger"
)

// CatalogBatchWriter consumes queued product rows: it validates each
// row's shape, creates the product and stock halves in one guarded
// transaction and publishes a creation notification.
//
// There is no per-record isolation here: a malformed or invalid record
// fails the whole batch before any of it is written, and the queue
// redelivers the batch. Redelivered rows that were already written are
// recognized by their id and skipped.
type CatalogBatchWriter struct {
	repo   domain.ProductRepository
	topic  pubsub.Publisher
	logger *logger.Logger
}

func NewCatalogBatchWriter(repo domain.ProductRepository, topic pubsub.Publisher, log *logger.Logger) *CatalogBatchWriter {
	return &CatalogBatchWriter{
		repo:   repo,
		topic:  topic,
		logger: log,
	}
}

func (w *CatalogBatchWriter) Handle(ctx context.Context, event events.SQSEvent) error {
	// Validate every record up front so a poison message aborts the batch
	// before the first table write.
	products := make([]domain.Product, 0, len(event.Records))
	for _, record := range event.Records {
		product, err := parseProductRow(record.Body)
		if err != nil {
			w.logger.Error(ctx, "Invalid product record",
				"message_id", record.MessageId,
				"error", err,
			)
			return err
		}
		products = append(products, product)
	}

	for _, product := range products {
		err := w.repo.CreateProduct(ctx, product)
		if errors.Is(err, domain.ErrProductExists) {
			// At-least-once redelivery: this row was written on an earlier
			// attempt.
			w.logger.Info(ctx, "Product already exists, skipping",
				"product_id", product.ID,
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("create product %s: %w", product.ID, err)
		}

		if err := w.publishCreated(ctx, product); err != nil {
			return fmt.Errorf("publish product %s: %w", product.ID, err)
		}

		w.logger.Info(ctx, "Product created",
			"product_id", product.ID,
			"title", product.Title,
		)
	}

	return nil
}

func (w *CatalogBatchWriter) publishCreated(ctx context.Context, product domain.Product) error {
	payload, err := json.Marshal(domain.NotificationEvent{
		Message: domain.ProductCreatedMessage,
		Product: product,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return w.topic.Publish(ctx, string(payload), pubsub.Attributes{
		"price": product.Price,
	})
}

// parseProductRow decodes and validates one queued row. Presence is
// checked explicitly, so a price or count of exactly zero is a present,
// valid value.
func parseProductRow(body string) (domain.Product, error) {
	if body == "" {
		return domain.Product{}, fmt.Errorf("%w: record body is missing", domain.ErrInvalidRow)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return domain.Product{}, fmt.Errorf("parse record body: %w", err)
	}
	if raw == nil {
		return domain.Product{}, fmt.Errorf("%w: product data is required", domain.ErrInvalidRow)
	}

	title, ok := raw["title"].(string)
	if !ok || strings.TrimSpace(title) == "" {
		return domain.Product{}, fmt.Errorf("%w: title must be a non-empty string", domain.ErrInvalidRow)
	}

	descValue, present := raw["description"]
	if !present {
		return domain.Product{}, fmt.Errorf("%w: missing required field: description", domain.ErrInvalidRow)
	}
	description, ok := descValue.(string)
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: description must be a string", domain.ErrInvalidRow)
	}

	priceValue, present := raw["price"]
	if !present {
		return domain.Product{}, fmt.Errorf("%w: missing required field: price", domain.ErrInvalidRow)
	}
	price, ok := priceValue.(float64)
	if !ok || price < 0 {
		return domain.Product{}, fmt.Errorf("%w: price must be a non-negative number", domain.ErrInvalidRow)
	}

	countValue, present := raw["count"]
	if !present {
		return domain.Product{}, fmt.Errorf("%w: missing required field: count", domain.ErrInvalidRow)
	}
	count, ok := countValue.(float64)
	if !ok || count < 0 || math.Trunc(count) != count {
		return domain.Product{}, fmt.Errorf("%w: count must be a non-negative integer", domain.ErrInvalidRow)
	}

	// Rows arriving from the CSV path carry no id; generate one.
	id, _ := raw["id"].(string)
	if id == "" {
		id = uuid.New().String()
	}

	return domain.Product{
		ID:          id,
		Title:       strings.TrimSpace(title),
		Description: description,
		Price:       price,
		Count:       int(count),
	}, nil
}
