package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/bahsim/catalog-import-service/internal/domain"
)

// MemoryStore keeps the products and stocks tables in memory. Both halves
// of a product are written under one lock, which gives the same
// all-or-nothing guarantee the conditional transaction provides on a real
// table store.
type MemoryStore struct {
	products map[string]domain.ProductRecord
	stocks   map[string]domain.StockRecord
	mu       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]domain.ProductRecord),
		stocks:   make(map[string]domain.StockRecord),
	}
}

func (s *MemoryStore) CreateProduct(ctx context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return domain.ErrProductExists
	}
	if _, exists := s.stocks[product.ID]; exists {
		return domain.ErrProductExists
	}

	s.products[product.ID] = product.Record()
	s.stocks[product.ID] = product.Stock()

	return nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.products[id]
	if !exists {
		return nil, domain.ErrProductNotFound
	}

	product := domain.Product{
		ID:          record.ID,
		Title:       record.Title,
		Description: record.Description,
		Price:       record.Price,
	}
	if stock, ok := s.stocks[id]; ok {
		product.Count = stock.Count
	}

	return &product, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for id, record := range s.products {
		product := domain.Product{
			ID:          record.ID,
			Title:       record.Title,
			Description: record.Description,
			Price:       record.Price,
		}
		if stock, ok := s.stocks[id]; ok {
			product.Count = stock.Count
		}
		products = append(products, product)
	}

	sort.Slice(products, func(i, j int) bool {
		return products[i].Title < products[j].Title
	})

	return products, nil
}
