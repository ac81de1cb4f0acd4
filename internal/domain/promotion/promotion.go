package promotion

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/customer"
)

var (
	// ErrNotFound is returned when a promotion code is not in the catalog.
	ErrNotFound = errors.New("promotion not found")
	// ErrUsageExhausted is returned by Repository.IncrementUsage when the
	// global cap was reached after the quote was taken.
	ErrUsageExhausted = errors.New("promotion usage limit reached")
)

// Kind enumerates the supported discount computations.
type Kind string

const (
	// KindPercentage takes a percentage of the whole cart subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed subtracts a fixed amount from the order.
	KindFixed Kind = "fixed"
	// KindPerItem discounts every unit of the applicable categories.
	KindPerItem Kind = "perItem"
	// KindCombo discounts each repetition of a multi-category combo.
	KindCombo Kind = "combo"
)

// ComboDiscountType is how a combo discount is applied per repetition.
type ComboDiscountType string

const (
	ComboPercentage ComboDiscountType = "percentage"
	ComboFixed      ComboDiscountType = "fixed"
)

// Terms is the kind-specific part of a promotion. It is implemented only by
// the four terms types in this package.
type Terms interface {
	Kind() Kind
	sealed()
}

// PercentageTerms discounts Percent points of the cart subtotal.
type PercentageTerms struct {
	Percent decimal.Decimal
}

// FixedTerms discounts a flat Amount.
type FixedTerms struct {
	Amount decimal.Decimal
}

// PerItemTerms discounts AmountPerUnit for every unit whose line category is
// in Categories, capped at the line value.
type PerItemTerms struct {
	AmountPerUnit decimal.Decimal
	Categories    []string
}

// ComboTerms discounts every satisfied repetition of Condition.
type ComboTerms struct {
	Condition ComboCondition
}

func (PercentageTerms) Kind() Kind { return KindPercentage }
func (FixedTerms) Kind() Kind      { return KindFixed }
func (PerItemTerms) Kind() Kind    { return KindPerItem }
func (ComboTerms) Kind() Kind      { return KindCombo }

func (PercentageTerms) sealed() {}
func (FixedTerms) sealed()      {}
func (PerItemTerms) sealed()    {}
func (ComboTerms) sealed()      {}

// Applies reports whether category is one of the discounted categories.
func (t PerItemTerms) Applies(category string) bool {
	return category != "" && slices.Contains(t.Categories, category)
}

// RequiredItem is one category requirement of a combo.
type RequiredItem struct {
	Category    string
	MinQuantity int
}

// ComboDiscount is the discount granted per combo repetition.
type ComboDiscount struct {
	Type  ComboDiscountType
	Value decimal.Decimal
}

// ComboCondition lists the category requirements of a combo. RequiredItems is
// never empty for a compiled promotion.
type ComboCondition struct {
	RequiredItems []RequiredItem
	Discount      ComboDiscount
}

// Targeting restricts which customers may use an offer. All present
// constraints combine with AND.
type Targeting struct {
	CustomerSpecific   bool
	AllowedCustomerIDs []string
	AllowedTiers       []customer.Tier
	RequiresCustomer   bool
}

// Promotion is a compiled, validated offer definition.
type Promotion struct {
	Code        string
	Name        string
	Description string
	Terms       Terms

	// Active is false for disabled offers and for offers outside their
	// validity window at catalog load time.
	Active        bool
	MinOrderValue decimal.NullDecimal
	// MaxUsage is the global redemption cap; zero means unlimited.
	MaxUsage      int
	CurrentUsage  int
	ConflictsWith []string
	Targeting     Targeting
}

// Kind returns the discount kind of p.
func (p *Promotion) Kind() Kind {
	return p.Terms.Kind()
}

// Combo returns the combo condition when p is a combo offer.
func (p *Promotion) Combo() (ComboCondition, bool) {
	t, ok := p.Terms.(ComboTerms)
	if !ok {
		return ComboCondition{}, false
	}
	return t.Condition, true
}

// ConflictsWithCode reports whether p lists code as mutually exclusive.
func (p *Promotion) ConflictsWithCode(code string) bool {
	return slices.Contains(p.ConflictsWith, code)
}

// Repository is the promotion catalog store. It owns the usage counters:
// the engine only reads CurrentUsage.
type Repository interface {
	List(ctx context.Context) ([]Definition, error)
	IncrementUsage(ctx context.Context, code string) error
}
