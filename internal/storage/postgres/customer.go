package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cafe-promotions/internal/domain/customer"
)

const (
	getCustomerByIDSQL = `SELECT id, name, membership_tier, loyalty_points FROM customers WHERE id = $1`

	deductPointsSQL = `UPDATE customers SET loyalty_points = loyalty_points - $2
		WHERE id = $1 AND loyalty_points >= $2`

	upsertCustomerSQL = `INSERT INTO customers (id, name, membership_tier, loyalty_points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name,
			membership_tier = EXCLUDED.membership_tier, loyalty_points = EXCLUDED.loyalty_points`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns a single customer by its identifier.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// DeductPoints atomically subtracts points from the balance. The balance
// never goes negative: a deduction above it fails with
// customer.ErrInsufficientPoints.
func (r *CustomerRepository) DeductPoints(ctx context.Context, id string, points int) error {
	tag, err := r.pool.Exec(ctx, deductPointsSQL, id, points)
	if err != nil {
		return fmt.Errorf("deducting points for customer %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return customer.ErrInsufficientPoints
}

// Upsert inserts or replaces a customer.
func (r *CustomerRepository) Upsert(ctx context.Context, c customer.Customer) error {
	if _, err := r.pool.Exec(ctx, upsertCustomerSQL, c.ID, c.Name, string(c.Tier), c.LoyaltyPoints); err != nil {
		return fmt.Errorf("upserting customer %q: %w", c.ID, err)
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var (
		c      customer.Customer
		tier   string
		points int32
	)
	err := row.Scan(&c.ID, &c.Name, &tier, &points)
	c.Tier = customer.Tier(tier)
	c.LoyaltyPoints = int(points)
	return c, err
}
