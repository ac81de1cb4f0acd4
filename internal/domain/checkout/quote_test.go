package checkout

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
	"github.com/xenking/cafe-promotions/internal/domain/customer"
	"github.com/xenking/cafe-promotions/internal/domain/loyalty"
	"github.com/xenking/cafe-promotions/internal/domain/promotion"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testDefinitions() []promotion.Definition {
	return []promotion.Definition{
		{
			Code: "COMBO1CF", Name: "Coffee + Pastry", Kind: "combo", Active: true,
			ComboCondition: &promotion.ComboDefinition{
				RequiredItems: []promotion.RequiredItemDefinition{
					{Category: "coffee", MinQuantity: 1},
					{Category: "pastry", MinQuantity: 1},
				},
				Discount: promotion.ComboDiscountDefinition{Type: "fixed", Value: d("20000")},
			},
		},
		{
			Code: "TENOFF", Name: "10% off", Kind: "percentage", Value: d("10"), Active: true,
			MinOrderValue: decimal.NewNullDecimal(d("100000")),
			ConflictsWith: []string{"FLAT"},
		},
		{
			Code: "FLAT", Name: "Flat 5000", Kind: "fixed", Value: d("5000"), Active: true,
		},
		{
			Code: "GOLD", Name: "Gold members", Kind: "fixed", Value: d("15000"), Active: true,
			CustomerSpecific:       true,
			AllowedMembershipTiers: []string{"gold", "diamond"},
		},
	}
}

func testCatalog(t *testing.T) *promotion.Catalog {
	t.Helper()
	catalog, rejected := promotion.NewCatalog(testDefinitions(), testNow)
	require.Empty(t, rejected)
	return catalog
}

func scenarioCart() cart.Cart {
	return cart.New(
		cart.LineItem{ID: "latte", Name: "Latte", Category: "coffee", UnitPrice: d("35000"), Quantity: 2},
		cart.LineItem{ID: "croissant", Name: "Croissant", Category: "pastry", UnitPrice: d("50000"), Quantity: 1},
	)
}

func TestQuote(t *testing.T) {
	catalog := testCatalog(t)
	redeemer := loyalty.NewRedeemer(loyalty.DefaultPointValue)
	gold := &customer.Customer{ID: "c1", Tier: customer.TierGold, LoyaltyPoints: 250}

	tests := []struct {
		name         string
		in           Input
		wantDiscount string
		wantPoints   int
		wantPayable  string
		wantRejected promotion.Reason
	}{
		{
			name:         "no selection",
			in:           Input{Cart: scenarioCart()},
			wantDiscount: "0",
			wantPayable:  "120000",
		},
		{
			name:         "combo",
			in:           Input{Cart: scenarioCart(), Selected: "COMBO1CF"},
			wantDiscount: "20000",
			wantPayable:  "100000",
		},
		{
			name:         "percentage with points",
			in:           Input{Cart: scenarioCart(), Customer: gold, Selected: "TENOFF", Points: 300},
			wantDiscount: "12000",
			wantPoints:   250,
			wantPayable:  "105500",
		},
		{
			name:         "tier gated without customer",
			in:           Input{Cart: scenarioCart(), Selected: "GOLD"},
			wantDiscount: "0",
			wantPayable:  "120000",
			wantRejected: promotion.ReasonTierRequired,
		},
		{
			name: "payable floors at zero",
			in: Input{
				Cart:     cart.New(cart.LineItem{ID: "water", Category: "drink", UnitPrice: d("3000"), Quantity: 1}),
				Selected: "FLAT",
			},
			wantDiscount: "5000",
			wantPayable:  "0",
		},
		{
			name:         "points ignored without customer",
			in:           Input{Cart: scenarioCart(), Points: 100},
			wantDiscount: "0",
			wantPayable:  "120000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Quote(catalog, redeemer, tt.in)
			require.NoError(t, err)

			assert.True(t, tt.in.Cart.Subtotal().Equal(s.Subtotal))
			assert.True(t, d(tt.wantDiscount).Equal(s.DiscountTotal), "discount %s", s.DiscountTotal)
			assert.Equal(t, tt.wantPoints, s.PointsRedeemed)
			assert.True(t, d(tt.wantPayable).Equal(s.FinalPayable), "payable %s", s.FinalPayable)
			assert.Len(t, s.Offers, catalog.Len())

			if tt.wantRejected != promotion.ReasonNone {
				require.NotNil(t, s.Rejected)
				assert.ErrorIs(t, s.Rejected, ErrNotApplicable)
				assert.Equal(t, tt.wantRejected, s.Rejected.Eligibility.Reason)
				assert.Nil(t, s.Selected)
				return
			}
			assert.Nil(t, s.Rejected)
		})
	}
}

func TestQuote_OffersReflectSelection(t *testing.T) {
	s, err := Quote(testCatalog(t), loyalty.Redeemer{}, Input{Cart: scenarioCart(), Selected: "TENOFF"})
	require.NoError(t, err)

	byCode := make(map[string]Offer, len(s.Offers))
	for _, o := range s.Offers {
		byCode[o.Promotion.Code] = o
	}

	assert.True(t, byCode["TENOFF"].Selected)
	assert.True(t, byCode["TENOFF"].Eligibility.Applicable)
	assert.Equal(t, promotion.ReasonConflict, byCode["FLAT"].Eligibility.Reason)

	combo := byCode["COMBO1CF"]
	require.NotNil(t, combo.Combo)
	assert.Equal(t, 1, combo.Combo.Repetitions)
	assert.Nil(t, byCode["FLAT"].Combo)
}

func TestQuote_UnknownCode(t *testing.T) {
	_, err := Quote(testCatalog(t), loyalty.Redeemer{}, Input{Cart: scenarioCart(), Selected: "NOPE"})
	require.ErrorIs(t, err, promotion.ErrNotFound)
}

func TestQuote_Idempotent(t *testing.T) {
	catalog := testCatalog(t)
	in := Input{Cart: scenarioCart(), Selected: "COMBO1CF"}

	first, err := Quote(catalog, loyalty.Redeemer{}, in)
	require.NoError(t, err)
	second, err := Quote(catalog, loyalty.Redeemer{}, in)
	require.NoError(t, err)

	assert.True(t, first.FinalPayable.Equal(second.FinalPayable))
	assert.True(t, first.DiscountTotal.Equal(second.DiscountTotal))
}
