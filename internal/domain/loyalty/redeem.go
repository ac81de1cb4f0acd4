// Package loyalty converts redeemed loyalty points into a currency discount.
package loyalty

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/customer"
)

// DefaultPointValue is the currency value of a single point.
var DefaultPointValue = decimal.NewFromInt(10)

// ErrPointsOutOfRange is returned when the points to redeem were not clamped
// to [0, balance] before conversion.
var ErrPointsOutOfRange = errors.New("points to redeem out of range")

// OutOfRangeError carries the rejected request and the available balance.
type OutOfRangeError struct {
	Requested int
	Balance   int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("cannot redeem %d points with a balance of %d", e.Requested, e.Balance)
}

// Is makes every OutOfRangeError match ErrPointsOutOfRange.
func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrPointsOutOfRange
}

// Redeemer converts points at a fixed linear rate.
type Redeemer struct {
	pointValue decimal.Decimal
}

// NewRedeemer returns a Redeemer valuing each point at pointValue. A
// non-positive value falls back to DefaultPointValue.
func NewRedeemer(pointValue decimal.Decimal) Redeemer {
	if !pointValue.IsPositive() {
		pointValue = DefaultPointValue
	}
	return Redeemer{pointValue: pointValue}
}

// PointValue returns the currency value of one point.
func (r Redeemer) PointValue() decimal.Decimal {
	if r.pointValue.IsZero() {
		return DefaultPointValue
	}
	return r.pointValue
}

// Clamp bounds requested to [0, cust.LoyaltyPoints]. Without a customer
// nothing can be redeemed.
func Clamp(requested int, cust *customer.Customer) int {
	if cust == nil || requested <= 0 {
		return 0
	}
	return min(requested, max(cust.LoyaltyPoints, 0))
}

// Value converts points into currency. points must already be clamped with
// Clamp; anything outside [0, balance] is rejected rather than valued.
func (r Redeemer) Value(points int, cust *customer.Customer) (decimal.Decimal, error) {
	if points == 0 {
		return decimal.Zero, nil
	}
	balance := 0
	if cust != nil {
		balance = cust.LoyaltyPoints
	}
	if points < 0 || points > balance {
		return decimal.Zero, &OutOfRangeError{Requested: points, Balance: balance}
	}
	return r.PointValue().Mul(decimal.NewFromInt(int64(points))), nil
}
