package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bahsim/catalog-import-service/internal/domain"
)

// PostgresStore persists products and stocks in Postgres. CreateProduct
// runs both inserts in one transaction with an existence guard, so a
// duplicate id rejects the whole write.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateProduct(ctx context.Context, product domain.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        insert into products (id, title, description, price)
        values ($1, $2, $3, $4)
        on conflict (id) do nothing
    `, product.ID, product.Title, product.Description, product.Price)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductExists
	}

	if _, err := tx.ExecContext(ctx, `
        insert into stocks (product_id, count)
        values ($1, $2)
    `, product.ID, product.Count); err != nil {
		return fmt.Errorf("insert stock: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
        select p.id, p.title, p.description, p.price, coalesce(s.count, 0)
        from products p
        left join stocks s on s.product_id = p.id
        where p.id = $1
    `, id)

	var product domain.Product
	if err := row.Scan(
		&product.ID,
		&product.Title,
		&product.Description,
		&product.Price,
		&product.Count,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}

	return &product, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
        select p.id, p.title, p.description, p.price, coalesce(s.count, 0)
        from products p
        left join stocks s on s.product_id = p.id
        order by p.title
    `)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(
			&product.ID,
			&product.Title,
			&product.Description,
			&product.Price,
			&product.Count,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	return products, rows.Err()
}
