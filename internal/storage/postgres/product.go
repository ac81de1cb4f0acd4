package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
)

const (
	listProductsSQL = `SELECT id, name, category, price FROM products ORDER BY category, id`

	getProductsByIDsSQL = `SELECT id, name, category, price FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (id, name, category, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category, price = EXCLUDED.price`
)

var _ cart.ProductRepository = (*ProductRepository)(nil)

// ProductRepository implements cart.ProductRepository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the whole menu grouped by category.
func (r *ProductRepository) List(ctx context.Context) ([]cart.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return collectProducts(rows)
}

// GetByIDs returns products matching any of the given IDs. Unknown IDs are
// silently absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]cart.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return collectProducts(rows)
}

// Upsert inserts or replaces a menu entry.
func (r *ProductRepository) Upsert(ctx context.Context, p cart.Product) error {
	if _, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Category, p.Price); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (cart.Product, error) {
	var p cart.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]cart.Product, error) {
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scanning products: %w", err)
	}
	return products, nil
}
