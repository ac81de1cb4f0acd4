package customer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// ErrInsufficientPoints is returned when a deduction exceeds the balance.
var ErrInsufficientPoints = errors.New("insufficient loyalty points")

// Tier is a membership tier. Tiers are ordered Bronze < Silver < Gold < Diamond.
type Tier string

const (
	TierBronze  Tier = "bronze"
	TierSilver  Tier = "silver"
	TierGold    Tier = "gold"
	TierDiamond Tier = "diamond"
)

var tierRank = map[Tier]int{
	TierBronze:  1,
	TierSilver:  2,
	TierGold:    3,
	TierDiamond: 4,
}

// ParseTier normalizes s into a known Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tierRank[t]; !ok {
		return "", errors.Errorf("unknown membership tier %q", s)
	}
	return t, nil
}

// Rank returns the position of t in the tier order, or 0 for an unknown tier.
func (t Tier) Rank() int {
	return tierRank[t]
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// Customer is the loyalty member optionally attached to a cart.
type Customer struct {
	ID            string
	Name          string
	Tier          Tier
	LoyaltyPoints int
}

// Repository provides customer lookup and the point ledger.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	DeductPoints(ctx context.Context, id string, points int) error
}
