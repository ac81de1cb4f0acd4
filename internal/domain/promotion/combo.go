package promotion

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
)

// Shortfall records a combo requirement the cart does not meet.
type Shortfall struct {
	RequiredItem
	Available int
}

// Missing returns how many more units of the category are needed.
func (s Shortfall) Missing() int {
	return s.MinQuantity - s.Available
}

// ComboMatch is the result of matching a combo condition against a cart.
type ComboMatch struct {
	Satisfied   bool
	Repetitions int
	// MatchedLines are the loose lines that contributed to a satisfied
	// requirement, in cart order.
	MatchedLines []cart.LineItem
	// UnmatchedLines are every other line, combo lines included.
	UnmatchedLines []cart.LineItem
	Missing        []Shortfall
	TotalDiscount  decimal.Decimal
	// Consumed are the units the repetitions actually use: for every
	// requirement, Repetitions × MinQuantity units taken from the matched
	// lines in cart order. Quantities are the consumed counts, so a line
	// with spare units appears with a smaller quantity than in the cart.
	Consumed []cart.LineItem
}

// MatchedSubtotal sums the subtotals of the matched lines.
func (m ComboMatch) MatchedSubtotal() decimal.Decimal {
	sum := zero
	for _, l := range m.MatchedLines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// ConsumedSubtotal sums the subtotals of the consumed units.
func (m ComboMatch) ConsumedSubtotal() decimal.Decimal {
	sum := zero
	for _, l := range m.Consumed {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// Match computes how many times cond is satisfied by c. The repetition count
// is the minimum over all requirements of floor(available / minQuantity),
// and zero whenever any requirement is short. Combo lines never count.
func Match(cond ComboCondition, c cart.Cart) ComboMatch {
	available := make(map[string]int, len(cond.RequiredItems))
	for _, req := range cond.RequiredItems {
		available[req.Category] = 0
	}
	for _, l := range c.Lines {
		if l.Combo {
			continue
		}
		if _, ok := available[l.Category]; ok {
			available[l.Category] += l.Quantity
		}
	}

	var (
		m         ComboMatch
		reps      = -1
		satisfied = make(map[string]struct{}, len(cond.RequiredItems))
	)
	for _, req := range cond.RequiredItems {
		have := available[req.Category]
		if req.MinQuantity <= 0 || have < req.MinQuantity {
			m.Missing = append(m.Missing, Shortfall{RequiredItem: req, Available: have})
			continue
		}
		satisfied[req.Category] = struct{}{}
		capacity := have / req.MinQuantity
		if reps < 0 || capacity < reps {
			reps = capacity
		}
	}
	if len(m.Missing) > 0 || reps < 0 {
		reps = 0
	}

	for _, l := range c.Lines {
		if _, ok := satisfied[l.Category]; ok && !l.Combo {
			m.MatchedLines = append(m.MatchedLines, l)
			continue
		}
		m.UnmatchedLines = append(m.UnmatchedLines, l)
	}

	m.Repetitions = reps
	m.Satisfied = reps > 0
	m.TotalDiscount = zero
	if m.Satisfied {
		m.TotalDiscount = comboDiscount(cond.Discount, m.MatchedSubtotal(), reps)
		m.Consumed = consume(cond, m.MatchedLines, reps)
	}

	return m
}

// comboDiscount applies d per repetition. A percentage is taken of the whole
// matched basis and then multiplied by the repetitions.
func comboDiscount(d ComboDiscount, basis decimal.Decimal, reps int) decimal.Decimal {
	r := decimal.NewFromInt(int64(reps))

	var amount decimal.Decimal
	switch d.Type {
	case ComboPercentage:
		amount = basis.Mul(d.Value).Div(hundred).Mul(r)
	case ComboFixed:
		amount = d.Value.Mul(r)
	default:
		amount = zero
	}

	return floorAtZero(amount).Round(2)
}

// consume takes reps × MinQuantity units per required category from lines,
// first line first.
func consume(cond ComboCondition, lines []cart.LineItem, reps int) []cart.LineItem {
	need := make(map[string]int, len(cond.RequiredItems))
	for _, req := range cond.RequiredItems {
		need[req.Category] += req.MinQuantity * reps
	}

	var out []cart.LineItem
	for _, l := range lines {
		n := min(need[l.Category], l.Quantity)
		if n <= 0 {
			continue
		}
		need[l.Category] -= n
		l.Quantity = n
		out = append(out, l)
	}
	return out
}
