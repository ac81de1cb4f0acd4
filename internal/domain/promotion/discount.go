package promotion

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// LineDiscount is the per-item discount granted on one cart line.
type LineDiscount struct {
	LineID   string
	LineName string
	Amount   decimal.Decimal
}

// Calculation is the monetary effect of an offer on a cart.
type Calculation struct {
	OrderDiscount decimal.Decimal
	PerItem       []LineDiscount
	Total         decimal.Decimal
	// Combo is set for combo offers.
	Combo *ComboMatch
}

// Calculate computes the discount of p on c. Eligibility must have been
// confirmed by the caller; it is not re-checked here. A fixed discount is
// not capped to the subtotal, the payable total is clamped downstream.
func Calculate(p *Promotion, c cart.Cart) (Calculation, error) {
	var calc Calculation

	switch t := p.Terms.(type) {
	case PercentageTerms:
		calc.OrderDiscount = floorAtZero(c.Subtotal().Mul(t.Percent).Div(hundred)).Round(2)
	case FixedTerms:
		calc.OrderDiscount = floorAtZero(t.Amount).Round(2)
	case PerItemTerms:
		calc.OrderDiscount = zero
		calc.PerItem = perItemDiscounts(t, c)
	case ComboTerms:
		m := Match(t.Condition, c)
		calc.OrderDiscount = m.TotalDiscount
		calc.Combo = &m
	default:
		return Calculation{}, errors.Errorf("unsupported promotion terms %T", p.Terms)
	}

	calc.Total = calc.OrderDiscount
	for _, d := range calc.PerItem {
		calc.Total = calc.Total.Add(d.Amount)
	}

	return calc, nil
}

// perItemDiscounts grants AmountPerUnit on every unit of the applicable
// categories, never more than the line is worth.
func perItemDiscounts(t PerItemTerms, c cart.Cart) []LineDiscount {
	var out []LineDiscount
	for _, l := range c.Lines {
		if !t.Applies(l.Category) {
			continue
		}
		qty := decimal.NewFromInt(int64(l.Quantity))
		amount := decimal.Min(t.AmountPerUnit.Mul(qty), l.UnitPrice.Mul(qty))
		out = append(out, LineDiscount{
			LineID:   l.ID,
			LineName: l.Name,
			Amount:   floorAtZero(amount).Round(2),
		})
	}
	return out
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
