package promotion

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
)

// Detection is the prompt payload for an auto-detected combo.
type Detection struct {
	ComboCode     string
	Name          string
	Repetitions   int
	MatchingItems []cart.LineItem
	// OriginalPrice is the subtotal of the matching lines; FinalPrice is the
	// same after the combo discount, never below zero.
	OriginalPrice decimal.Decimal
	FinalPrice    decimal.Decimal
	// Consumed are the units folded into the combo line when the suggestion
	// is accepted; spare units of the matching lines stay loose.
	Consumed []cart.LineItem
	// ComboPrice is the price of the combo line: the consumed units'
	// subtotal less the combo discount on those units, never below zero.
	ComboPrice decimal.Decimal
}

// ComboLine returns the line that replaces the consumed units.
func (d *Detection) ComboLine() cart.LineItem {
	return cart.LineItem{
		ID:        d.ComboCode,
		Name:      d.Name,
		UnitPrice: d.ComboPrice,
		Quantity:  1,
		Combo:     true,
	}
}

// Detect simulates adding one unit of incoming to c and returns the first
// combo (in the given priority order) that the hypothetical cart satisfies
// more times than c does. It returns nil when no combo newly fires, and the
// caller proceeds with a plain append. Inactive combos are skipped; dismissed
// combos must be filtered out by the caller.
func Detect(c cart.Cart, incoming cart.Product, combos []*Promotion) *Detection {
	next := c.WithUnit(incoming)

	for _, p := range combos {
		if !p.Active {
			continue
		}
		cond, ok := p.Combo()
		if !ok {
			continue
		}

		after := Match(cond, next)
		if !after.Satisfied {
			continue
		}
		if before := Match(cond, c); before.Repetitions >= after.Repetitions {
			continue
		}

		original := after.MatchedSubtotal()
		consumed := after.ConsumedSubtotal()
		return &Detection{
			ComboCode:     p.Code,
			Name:          p.Name,
			Repetitions:   after.Repetitions,
			MatchingItems: after.MatchedLines,
			OriginalPrice: original,
			FinalPrice:    floorAtZero(original.Sub(after.TotalDiscount)),
			Consumed:      after.Consumed,
			ComboPrice:    floorAtZero(consumed.Sub(foldedDiscount(cond.Discount, consumed, after.Repetitions))),
		}
	}

	return nil
}

// foldedDiscount prices the combo line against the units it actually holds.
// The consumed basis already spans every repetition, so a percentage is not
// multiplied again.
func foldedDiscount(d ComboDiscount, consumed decimal.Decimal, reps int) decimal.Decimal {
	if d.Type == ComboPercentage {
		return floorAtZero(consumed.Mul(d.Value).Div(hundred)).Round(2)
	}
	return comboDiscount(d, consumed, reps)
}
