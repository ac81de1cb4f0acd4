package promotion

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
	"github.com/xenking/cafe-promotions/internal/domain/customer"
)

// Reason identifies the first eligibility check an offer failed.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonInactive           Reason = "inactive"
	ReasonRequiresCustomer   Reason = "requires_customer"
	ReasonCustomerNotAllowed Reason = "customer_not_allowed"
	ReasonTierNotAllowed     Reason = "tier_not_allowed"
	ReasonTierRequired       Reason = "tier_required"
	ReasonMinOrderValue      Reason = "min_order_value"
	ReasonUsageExhausted     Reason = "usage_exhausted"
	ReasonConflict           Reason = "conflict"
)

// Eligibility is the verdict for one offer against the current cart state.
type Eligibility struct {
	Applicable bool
	Reason     Reason
	Text       string
}

func applicable() Eligibility {
	return Eligibility{Applicable: true}
}

func notApplicable(reason Reason, format string, args ...any) Eligibility {
	return Eligibility{Reason: reason, Text: fmt.Sprintf(format, args...)}
}

// Evaluate decides whether p can be applied to c for the attached customer
// (nil when none) while selected is the currently selected offer (nil when
// none). Checks run in a fixed order and the first failure is reported.
func Evaluate(p *Promotion, c cart.Cart, cust *customer.Customer, selected *Promotion) Eligibility {
	if !p.Active {
		return notApplicable(ReasonInactive, "Promotion %s is expired or inactive", p.Code)
	}

	t := p.Targeting
	if t.RequiresCustomer && cust == nil {
		return notApplicable(ReasonRequiresCustomer, "Attach a customer to use this promotion")
	}

	if cust != nil && t.CustomerSpecific {
		if len(t.AllowedCustomerIDs) > 0 && !slices.Contains(t.AllowedCustomerIDs, cust.ID) {
			return notApplicable(ReasonCustomerNotAllowed, "Customer %s is not eligible for this promotion", cust.ID)
		}
		if len(t.AllowedTiers) > 0 && !slices.Contains(t.AllowedTiers, cust.Tier) {
			return notApplicable(ReasonTierNotAllowed, "Requires %s membership", joinTiers(t.AllowedTiers))
		}
	}

	if cust == nil && len(t.AllowedTiers) > 0 {
		return notApplicable(ReasonTierRequired, "Attach a %s member to use this promotion", joinTiers(t.AllowedTiers))
	}

	if p.MinOrderValue.Valid && c.Subtotal().LessThan(p.MinOrderValue.Decimal) {
		return notApplicable(ReasonMinOrderValue, "Minimum order value %s not met", p.MinOrderValue.Decimal.String())
	}

	if p.MaxUsage > 0 && p.CurrentUsage >= p.MaxUsage {
		return notApplicable(ReasonUsageExhausted, "Usage limit of %d reached", p.MaxUsage)
	}

	if selected != nil && selected.Code != p.Code &&
		(selected.ConflictsWithCode(p.Code) || p.ConflictsWithCode(selected.Code)) {
		return notApplicable(ReasonConflict, "Cannot be combined with %s", selected.Code)
	}

	return applicable()
}

// Verdict pairs a promotion with its eligibility.
type Verdict struct {
	Promotion   *Promotion
	Eligibility Eligibility
}

// EvaluateAll evaluates every catalog promotion in catalog order.
func EvaluateAll(catalog *Catalog, c cart.Cart, cust *customer.Customer, selected *Promotion) []Verdict {
	out := make([]Verdict, 0, catalog.Len())
	for _, p := range catalog.All() {
		out = append(out, Verdict{
			Promotion:   p,
			Eligibility: Evaluate(p, c, cust, selected),
		})
	}
	return out
}

func joinTiers(tiers []customer.Tier) string {
	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = string(t)
	}
	return strings.Join(names, "/")
}
