package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/promotion"
)

const (
	promotionColumns = `code, name, description, kind, value, min_order_value, applicable_categories,
		max_usage, current_usage, active, valid_from, valid_until, conflicts_with,
		customer_specific, allowed_customer_ids, allowed_membership_tiers, requires_customer,
		combo_condition`

	listPromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions ORDER BY position`

	incrementUsageSQL = `UPDATE promotions SET current_usage = current_usage + 1
		WHERE code = $1 AND (max_usage IS NULL OR current_usage < max_usage)`

	promotionExistsSQL = `SELECT EXISTS (SELECT 1 FROM promotions WHERE code = $1)`

	upsertPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			kind = EXCLUDED.kind,
			value = EXCLUDED.value,
			min_order_value = EXCLUDED.min_order_value,
			applicable_categories = EXCLUDED.applicable_categories,
			max_usage = EXCLUDED.max_usage,
			active = EXCLUDED.active,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			conflicts_with = EXCLUDED.conflicts_with,
			customer_specific = EXCLUDED.customer_specific,
			allowed_customer_ids = EXCLUDED.allowed_customer_ids,
			allowed_membership_tiers = EXCLUDED.allowed_membership_tiers,
			requires_customer = EXCLUDED.requires_customer,
			combo_condition = EXCLUDED.combo_condition`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
// Rows are returned in insertion order, which is the combo priority order.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// List returns every stored definition, valid or not. Validation happens
// when the catalog is compiled.
func (r *PromotionRepository) List(ctx context.Context) ([]promotion.Definition, error) {
	rows, err := r.pool.Query(ctx, listPromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	return collectDefinitions(rows)
}

// IncrementUsage atomically increments the usage counter, refusing to go
// past max_usage.
func (r *PromotionRepository) IncrementUsage(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, incrementUsageSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing usage for promotion %q: %w", code, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, promotionExistsSQL, code).Scan(&exists); err != nil {
		return fmt.Errorf("checking promotion %q: %w", code, err)
	}
	if !exists {
		return errors.Wrapf(promotion.ErrNotFound, "increment usage of %q", code)
	}
	return errors.Wrapf(promotion.ErrUsageExhausted, "increment usage of %q", code)
}

// Upsert inserts or replaces a definition. The usage counter of an existing
// row is kept.
func (r *PromotionRepository) Upsert(ctx context.Context, def promotion.Definition) error {
	var combo []byte
	if def.ComboCondition != nil {
		b, err := json.Marshal(def.ComboCondition)
		if err != nil {
			return fmt.Errorf("marshaling combo condition of %q: %w", def.Code, err)
		}
		combo = b
	}

	var minOrder *decimal.Decimal
	if def.MinOrderValue.Valid {
		minOrder = &def.MinOrderValue.Decimal
	}

	_, err := r.pool.Exec(ctx, upsertPromotionSQL,
		def.Code, def.Name, def.Description, def.Kind, def.Value, minOrder,
		nonNil(def.ApplicableCategories), def.MaxUsage, def.CurrentUsage, def.Active,
		def.ValidFrom, def.ValidUntil, nonNil(def.ConflictsWith),
		def.CustomerSpecific, nonNil(def.AllowedCustomerIDs), nonNil(def.AllowedMembershipTiers),
		def.RequiresCustomer, combo,
	)
	if err != nil {
		return fmt.Errorf("upserting promotion %q: %w", def.Code, err)
	}
	return nil
}

func collectDefinitions(rows pgx.Rows) ([]promotion.Definition, error) {
	defs, err := pgx.CollectRows(rows, scanDefinition)
	if err != nil {
		return nil, fmt.Errorf("scanning promotions: %w", err)
	}
	return defs, nil
}

func scanDefinition(row pgx.CollectableRow) (promotion.Definition, error) {
	var (
		def          promotion.Definition
		minOrder     *decimal.Decimal
		maxUsage     *int32
		currentUsage int32
		validFrom    *time.Time
		validUntil   *time.Time
		combo        []byte
	)
	if err := row.Scan(
		&def.Code, &def.Name, &def.Description, &def.Kind, &def.Value, &minOrder,
		&def.ApplicableCategories, &maxUsage, &currentUsage, &def.Active,
		&validFrom, &validUntil, &def.ConflictsWith,
		&def.CustomerSpecific, &def.AllowedCustomerIDs, &def.AllowedMembershipTiers,
		&def.RequiresCustomer, &combo,
	); err != nil {
		return promotion.Definition{}, err
	}

	if minOrder != nil {
		def.MinOrderValue = decimal.NewNullDecimal(*minOrder)
	}
	if maxUsage != nil {
		v := int(*maxUsage)
		def.MaxUsage = &v
	}
	def.CurrentUsage = int(currentUsage)
	def.ValidFrom = validFrom
	def.ValidUntil = validUntil

	if len(combo) > 0 {
		def.ComboCondition = new(promotion.ComboDefinition)
		if err := json.Unmarshal(combo, def.ComboCondition); err != nil {
			return promotion.Definition{}, fmt.Errorf("decoding combo condition of %q: %w", def.Code, err)
		}
	}

	return def, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
