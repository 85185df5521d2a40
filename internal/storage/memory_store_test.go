package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bahsim/catalog-import-service/internal/domain"
)

func sampleProduct(id, title string) domain.Product {
	return domain.Product{
		ID:          id,
		Title:       title,
		Description: "desc",
		Price:       10,
		Count:       3,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	product := sampleProduct("p-1", "Mouse")
	require.NoError(t, store.CreateProduct(ctx, product))

	got, err := store.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, product, *got)
}

func TestMemoryStore_DuplicateIDRejected(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateProduct(ctx, sampleProduct("p-1", "Mouse")))

	err := store.CreateProduct(ctx, sampleProduct("p-1", "Keyboard"))
	assert.ErrorIs(t, err, domain.ErrProductExists)

	// The first write is untouched.
	got, err := store.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Mouse", got.Title)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetProduct(context.Background(), "absent")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestMemoryStore_ListSortedByTitle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateProduct(ctx, sampleProduct("p-2", "Zebra print")))
	require.NoError(t, store.CreateProduct(ctx, sampleProduct("p-1", "Armchair")))
	require.NoError(t, store.CreateProduct(ctx, sampleProduct("p-3", "Mouse")))

	products, err := store.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "Armchair", products[0].Title)
	assert.Equal(t, "Mouse", products[1].Title)
	assert.Equal(t, "Zebra print", products[2].Title)
}

func TestMemoryStore_ListEmpty(t *testing.T) {
	store := NewMemoryStore()

	products, err := store.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
}
