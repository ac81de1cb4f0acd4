// Package checkout turns a cart, an optional customer and the promotion
// catalog into a priced summary.
//
// Quote is the pure evaluation. Service is the stateless, repository-backed
// entry point used by the HTTP API. Session is the embeddable till-side
// state holder: a till or kiosk keeps one per open cart to get combo
// suggestions on each added unit, remember dismissed combos and keep the
// selected offer valid as the cart changes.
package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
	"github.com/xenking/cafe-promotions/internal/domain/customer"
	"github.com/xenking/cafe-promotions/internal/domain/loyalty"
	"github.com/xenking/cafe-promotions/internal/domain/promotion"
)

// ErrNotApplicable is matched by every NotApplicableError.
var ErrNotApplicable = errors.New("promotion not applicable")

// NotApplicableError reports a selected offer that failed eligibility.
type NotApplicableError struct {
	Code        string
	Eligibility promotion.Eligibility
}

func (e *NotApplicableError) Error() string {
	return fmt.Sprintf("promotion %s not applicable: %s", e.Code, e.Eligibility.Text)
}

// Is makes every NotApplicableError match ErrNotApplicable.
func (e *NotApplicableError) Is(target error) bool {
	return target == ErrNotApplicable
}

// Input is everything a quote depends on.
type Input struct {
	Cart     cart.Cart
	Customer *customer.Customer
	// Selected is the selected promotion code, empty when none.
	Selected string
	// Points is the requested redemption; it is clamped to the balance.
	Points int
}

// Offer is one catalog entry as shown to the operator.
type Offer struct {
	Promotion   *promotion.Promotion
	Eligibility promotion.Eligibility
	Selected    bool
	// Combo holds the match hint for combo offers ("x2 applicable",
	// "missing 1 pastry").
	Combo *promotion.ComboMatch
}

// Summary is the combined result reported back to the checkout.
type Summary struct {
	Subtotal decimal.Decimal
	Offers   []Offer

	// Selected is the applied offer. It is nil when nothing was selected or
	// the selection is not applicable; Rejected then explains why.
	Selected    *promotion.Promotion
	Rejected    *NotApplicableError
	Calculation *promotion.Calculation

	DiscountTotal  decimal.Decimal
	PointsRedeemed int
	PointsValue    decimal.Decimal
	TotalSavings   decimal.Decimal
	FinalPayable   decimal.Decimal
}

// Quote evaluates every offer, applies the selected one and the redeemed
// points, and returns the combined savings. It is a pure function of its
// inputs; nothing is cached between calls.
func Quote(catalog *promotion.Catalog, redeemer loyalty.Redeemer, in Input) (Summary, error) {
	s := Summary{
		Subtotal:      in.Cart.Subtotal(),
		DiscountTotal: decimal.Zero,
		PointsValue:   decimal.Zero,
	}

	if in.Selected != "" {
		p, ok := catalog.Lookup(in.Selected)
		if !ok {
			return Summary{}, errors.Wrapf(promotion.ErrNotFound, "select %q", in.Selected)
		}
		if e := promotion.Evaluate(p, in.Cart, in.Customer, p); e.Applicable {
			s.Selected = p
		} else {
			s.Rejected = &NotApplicableError{Code: p.Code, Eligibility: e}
		}
	}

	for _, v := range promotion.EvaluateAll(catalog, in.Cart, in.Customer, s.Selected) {
		offer := Offer{
			Promotion:   v.Promotion,
			Eligibility: v.Eligibility,
			Selected:    s.Selected != nil && s.Selected.Code == v.Promotion.Code,
		}
		if cond, ok := v.Promotion.Combo(); ok {
			m := promotion.Match(cond, in.Cart)
			offer.Combo = &m
		}
		s.Offers = append(s.Offers, offer)
	}

	if s.Selected != nil {
		calc, err := promotion.Calculate(s.Selected, in.Cart)
		if err != nil {
			return Summary{}, errors.Wrap(err, "calculate discount")
		}
		s.Calculation = &calc
		s.DiscountTotal = calc.Total
	}

	s.PointsRedeemed = loyalty.Clamp(in.Points, in.Customer)
	value, err := redeemer.Value(s.PointsRedeemed, in.Customer)
	if err != nil {
		return Summary{}, errors.Wrap(err, "redeem points")
	}
	s.PointsValue = value

	s.TotalSavings = s.DiscountTotal.Add(s.PointsValue)
	s.FinalPayable = s.Subtotal.Sub(s.TotalSavings)
	if s.FinalPayable.IsNegative() {
		s.FinalPayable = decimal.Zero
	}
	s.FinalPayable = s.FinalPayable.Round(2)

	return s, nil
}
