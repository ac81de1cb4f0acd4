package promotion

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/customer"
)

var (
	// ErrInvalidPromotion is wrapped by every load-time validation failure.
	ErrInvalidPromotion = errors.New("invalid promotion")
	// ErrSKURequirement is returned for combo requirements that name a
	// specific product instead of a category. Only category matching is
	// supported.
	ErrSKURequirement = errors.New("product-specific combo requirements are not supported")
)

// InvalidError describes why a definition was rejected from the catalog.
type InvalidError struct {
	Code   string
	Reason string
	Err    error
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("promotion %q: %s", e.Code, e.Reason)
}

func (e *InvalidError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidPromotion
}

// Is makes every InvalidError match ErrInvalidPromotion.
func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalidPromotion
}

// Definition is the loose storage/import shape of an offer. Fields that do
// not apply to Kind are expected to be empty.
type Definition struct {
	Code                   string              `json:"code"`
	Name                   string              `json:"name"`
	Description            string              `json:"description,omitempty"`
	Kind                   string              `json:"kind"`
	Value                  decimal.Decimal     `json:"value"`
	MinOrderValue          decimal.NullDecimal `json:"minOrderValue"`
	ApplicableCategories   []string            `json:"applicableCategories,omitempty"`
	MaxUsage               *int                `json:"maxUsage,omitempty"`
	CurrentUsage           int                 `json:"currentUsage"`
	Active                 bool                `json:"active"`
	ValidFrom              *time.Time          `json:"validFrom,omitempty"`
	ValidUntil             *time.Time          `json:"validUntil,omitempty"`
	ConflictsWith          []string            `json:"conflictsWith,omitempty"`
	CustomerSpecific       bool                `json:"customerSpecific,omitempty"`
	AllowedCustomerIDs     []string            `json:"allowedCustomerIds,omitempty"`
	AllowedMembershipTiers []string            `json:"allowedMembershipTiers,omitempty"`
	RequiresCustomer       bool                `json:"requiresCustomer,omitempty"`
	ComboCondition         *ComboDefinition    `json:"comboCondition,omitempty"`
}

// ComboDefinition is the loose shape of a combo condition.
type ComboDefinition struct {
	RequiredItems []RequiredItemDefinition `json:"requiredItems"`
	Discount      ComboDiscountDefinition  `json:"discount"`
}

// RequiredItemDefinition is the loose shape of a combo requirement. Exactly
// one of Category and ProductID is expected; only Category is supported.
type RequiredItemDefinition struct {
	Category    string `json:"category,omitempty"`
	ProductID   string `json:"productId,omitempty"`
	MinQuantity int    `json:"minQuantity"`
}

// ComboDiscountDefinition is the loose shape of a combo discount.
type ComboDiscountDefinition struct {
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Compile validates def and converts it into a Promotion. The validity window
// is evaluated against now and folded into Active.
func Compile(def Definition, now time.Time) (*Promotion, error) {
	invalid := func(reason string, args ...any) error {
		return &InvalidError{Code: def.Code, Reason: fmt.Sprintf(reason, args...)}
	}

	code := strings.TrimSpace(def.Code)
	if code == "" {
		return nil, invalid("code is required")
	}
	if def.Value.IsNegative() {
		return nil, invalid("value must not be negative")
	}
	if def.MinOrderValue.Valid && def.MinOrderValue.Decimal.IsNegative() {
		return nil, invalid("minimum order value must not be negative")
	}
	if def.CurrentUsage < 0 {
		return nil, invalid("current usage must not be negative")
	}

	p := &Promotion{
		Code:          code,
		Name:          def.Name,
		Description:   def.Description,
		Active:        def.Active && withinWindow(def.ValidFrom, def.ValidUntil, now),
		MinOrderValue: def.MinOrderValue,
		CurrentUsage:  def.CurrentUsage,
		ConflictsWith: append([]string(nil), def.ConflictsWith...),
		Targeting: Targeting{
			CustomerSpecific:   def.CustomerSpecific,
			AllowedCustomerIDs: append([]string(nil), def.AllowedCustomerIDs...),
			RequiresCustomer:   def.RequiresCustomer,
		},
	}
	if def.MaxUsage != nil {
		if *def.MaxUsage <= 0 {
			return nil, invalid("max usage must be positive when set")
		}
		p.MaxUsage = *def.MaxUsage
	}
	for _, s := range def.AllowedMembershipTiers {
		tier, err := customer.ParseTier(s)
		if err != nil {
			return nil, &InvalidError{Code: code, Reason: err.Error()}
		}
		p.Targeting.AllowedTiers = append(p.Targeting.AllowedTiers, tier)
	}

	kind := Kind(def.Kind)
	if kind != KindCombo && def.ComboCondition != nil {
		return nil, invalid("%s promotion must not carry a combo condition", kind)
	}

	switch kind {
	case KindPercentage:
		if def.Value.GreaterThan(hundred) {
			return nil, invalid("percentage must not exceed 100")
		}
		p.Terms = PercentageTerms{Percent: def.Value}
	case KindFixed:
		p.Terms = FixedTerms{Amount: def.Value}
	case KindPerItem:
		if len(def.ApplicableCategories) == 0 {
			return nil, invalid("per-item promotion requires applicable categories")
		}
		p.Terms = PerItemTerms{
			AmountPerUnit: def.Value,
			Categories:    append([]string(nil), def.ApplicableCategories...),
		}
	case KindCombo:
		cond, err := compileCombo(code, def.ComboCondition)
		if err != nil {
			return nil, err
		}
		p.Terms = ComboTerms{Condition: cond}
	default:
		return nil, invalid("unsupported kind %q", def.Kind)
	}

	return p, nil
}

func compileCombo(code string, def *ComboDefinition) (ComboCondition, error) {
	if def == nil || len(def.RequiredItems) == 0 {
		return ComboCondition{}, &InvalidError{Code: code, Reason: "combo requires at least one required item"}
	}

	cond := ComboCondition{
		RequiredItems: make([]RequiredItem, 0, len(def.RequiredItems)),
	}
	for i, item := range def.RequiredItems {
		category := strings.TrimSpace(item.Category)
		if category == "" {
			if item.ProductID != "" {
				return ComboCondition{}, &InvalidError{
					Code:   code,
					Reason: fmt.Sprintf("required item %d names product %q", i, item.ProductID),
					Err:    ErrSKURequirement,
				}
			}
			return ComboCondition{}, &InvalidError{Code: code, Reason: fmt.Sprintf("required item %d has no category", i)}
		}
		if item.MinQuantity < 1 {
			return ComboCondition{}, &InvalidError{Code: code, Reason: fmt.Sprintf("required item %d needs a minimum quantity of at least 1", i)}
		}
		cond.RequiredItems = append(cond.RequiredItems, RequiredItem{
			Category:    category,
			MinQuantity: item.MinQuantity,
		})
	}

	switch ComboDiscountType(def.Discount.Type) {
	case ComboPercentage:
		if def.Discount.Value.GreaterThan(hundred) {
			return ComboCondition{}, &InvalidError{Code: code, Reason: "combo percentage must not exceed 100"}
		}
	case ComboFixed:
	default:
		return ComboCondition{}, &InvalidError{Code: code, Reason: fmt.Sprintf("unsupported combo discount type %q", def.Discount.Type)}
	}
	if def.Discount.Value.IsNegative() {
		return ComboCondition{}, &InvalidError{Code: code, Reason: "combo discount must not be negative"}
	}
	cond.Discount = ComboDiscount{
		Type:  ComboDiscountType(def.Discount.Type),
		Value: def.Discount.Value,
	}

	return cond, nil
}

func withinWindow(from, until *time.Time, now time.Time) bool {
	if from != nil && now.Before(*from) {
		return false
	}
	if until != nil && now.After(*until) {
		return false
	}
	return true
}
