package domain

import "context"

// ProductRepository persists products split across the products and stocks
// tables. CreateProduct writes both halves atomically with an existence
// guard: a duplicate id returns ErrProductExists and leaves both tables
// untouched.
type ProductRepository interface {
	CreateProduct(ctx context.Context, product Product) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}
