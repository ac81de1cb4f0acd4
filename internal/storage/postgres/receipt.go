package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/checkout"
)

const createReceiptSQL = `INSERT INTO receipts (id, lines, customer_id, promotion_code, subtotal,
	discount, points_redeemed, points_value, total, created_at)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10)`

var _ checkout.ReceiptRepository = (*ReceiptRepository)(nil)

// ReceiptRepository implements checkout.ReceiptRepository backed by PostgreSQL.
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

// NewReceiptRepository returns a ReceiptRepository that uses the given pool.
func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

type receiptLine struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Combo     bool            `json:"combo,omitempty"`
}

// Create persists a completed checkout. The receipt lines are serialized to
// JSON for storage in the JSONB column.
func (r *ReceiptRepository) Create(ctx context.Context, rc *checkout.Receipt) error {
	lines := make([]receiptLine, len(rc.Lines))
	for i, l := range rc.Lines {
		lines[i] = receiptLine{
			ID:        l.ID,
			Name:      l.Name,
			Category:  l.Category,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Combo:     l.Combo,
		}
	}
	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshaling receipt lines: %w", err)
	}

	_, err = r.pool.Exec(ctx, createReceiptSQL,
		rc.ID, linesJSON, rc.CustomerID, rc.PromotionCode, rc.Subtotal,
		rc.Discount, rc.PointsRedeemed, rc.PointsValue, rc.Total, rc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating receipt %q: %w", rc.ID, err)
	}

	return nil
}
