package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
	"github.com/xenking/cafe-promotions/internal/domain/customer"
	"github.com/xenking/cafe-promotions/internal/domain/loyalty"
	"github.com/xenking/cafe-promotions/internal/domain/promotion"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]cart.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]cart.Product, error) {
	out := make([]cart.Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]cart.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []cart.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCustomerRepo struct {
	byID     map[string]*customer.Customer
	deducted map[string]int
}

func (m *mockCustomerRepo) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCustomerRepo) DeductPoints(_ context.Context, id string, points int) error {
	if m.deducted == nil {
		m.deducted = make(map[string]int)
	}
	m.deducted[id] += points
	return nil
}

type mockPromotionRepo struct {
	defs        []promotion.Definition
	listErr     error
	incremented []string
}

func (m *mockPromotionRepo) List(_ context.Context) ([]promotion.Definition, error) {
	return m.defs, m.listErr
}

func (m *mockPromotionRepo) IncrementUsage(_ context.Context, code string) error {
	m.incremented = append(m.incremented, code)
	return nil
}

type mockReceiptRepo struct {
	last *Receipt
	err  error
}

func (m *mockReceiptRepo) Create(_ context.Context, r *Receipt) error {
	m.last = r
	return m.err
}

// --- Helpers ---

type fixture struct {
	svc        *Service
	customers  *mockCustomerRepo
	promotions *mockPromotionRepo
	receipts   *mockReceiptRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	products := &mockProductRepo{byID: map[string]cart.Product{
		latte.ID:     latte,
		croissant.ID: croissant,
		water.ID:     water,
	}}
	f := &fixture{
		customers: &mockCustomerRepo{byID: map[string]*customer.Customer{
			"c1": {ID: "c1", Name: "Ana", Tier: customer.TierGold, LoyaltyPoints: 250},
		}},
		promotions: &mockPromotionRepo{defs: testDefinitions()},
		receipts:   &mockReceiptRepo{},
	}

	svc, err := NewService(products, f.customers, f.promotions, f.receipts, loyalty.NewRedeemer(loyalty.DefaultPointValue))
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	f.svc = svc
	return f
}

func scenarioItems() []ItemRequest {
	return []ItemRequest{
		{ProductID: "latte", Quantity: 2},
		{ProductID: "croissant", Quantity: 1},
	}
}

// --- Tests ---

func TestService_QuoteValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Quote(ctx, QuoteRequest{})
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = f.svc.Quote(ctx, QuoteRequest{Items: []ItemRequest{{ProductID: "latte"}}})
	var iq *InvalidQuantityError
	require.ErrorAs(t, err, &iq)
	assert.Equal(t, "latte", iq.ProductID)

	_, err = f.svc.Quote(ctx, QuoteRequest{Items: []ItemRequest{{ProductID: "tea", Quantity: 1}}})
	var pnf *cart.ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "tea", pnf.ProductID)

	_, err = f.svc.Quote(ctx, QuoteRequest{Items: scenarioItems(), CustomerID: "ghost"})
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestService_Quote(t *testing.T) {
	f := newFixture(t)

	sum, err := f.svc.Quote(context.Background(), QuoteRequest{
		Items:         scenarioItems(),
		CustomerID:    "c1",
		PromotionCode: "TENOFF",
		Points:        300,
	})
	require.NoError(t, err)

	assert.True(t, d("120000").Equal(sum.Subtotal))
	assert.True(t, d("12000").Equal(sum.DiscountTotal))
	assert.Equal(t, 250, sum.PointsRedeemed)
	assert.True(t, d("2500").Equal(sum.PointsValue))
	assert.True(t, d("105500").Equal(sum.FinalPayable))
}

func TestService_QuoteSurcharge(t *testing.T) {
	f := newFixture(t)

	sum, err := f.svc.Quote(context.Background(), QuoteRequest{Items: []ItemRequest{
		{ProductID: "latte", Quantity: 1},
		{ProductID: "latte", Quantity: 1, Surcharge: d("5000")},
	}})
	require.NoError(t, err)
	assert.True(t, d("75000").Equal(sum.Subtotal))
}

func TestService_QuoteCatalogError(t *testing.T) {
	f := newFixture(t)
	f.promotions.listErr = errors.New("db down")

	_, err := f.svc.Quote(context.Background(), QuoteRequest{Items: scenarioItems()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestService_DetectCombo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	det, err := f.svc.DetectCombo(ctx, DetectRequest{
		Items:     []ItemRequest{{ProductID: "latte", Quantity: 1}},
		ProductID: "croissant",
	})
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, "COMBO1CF", det.ComboCode)

	det, err = f.svc.DetectCombo(ctx, DetectRequest{
		Items:     []ItemRequest{{ProductID: "latte", Quantity: 1}},
		ProductID: "croissant",
		Dismissed: []string{"COMBO1CF"},
	})
	require.NoError(t, err)
	assert.Nil(t, det)

	det, err = f.svc.DetectCombo(ctx, DetectRequest{ProductID: "latte"})
	require.NoError(t, err)
	assert.Nil(t, det)

	_, err = f.svc.DetectCombo(ctx, DetectRequest{ProductID: "tea"})
	require.ErrorIs(t, err, cart.ErrProductNotFound)
}

func TestService_Complete(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Complete(context.Background(), QuoteRequest{
		Items:         scenarioItems(),
		CustomerID:    "c1",
		PromotionCode: "COMBO1CF",
		Points:        100,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "COMBO1CF", r.PromotionCode)
	assert.True(t, d("20000").Equal(r.Discount))
	assert.True(t, d("1000").Equal(r.PointsValue))
	assert.True(t, d("99000").Equal(r.Total))
	assert.Equal(t, testNow, r.CreatedAt)
	assert.Len(t, r.Lines, 2)

	assert.Same(t, r, f.receipts.last)
	assert.Equal(t, []string{"COMBO1CF"}, f.promotions.incremented)
	assert.Equal(t, 100, f.customers.deducted["c1"])
}

func TestService_CompleteRejectsInapplicable(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Complete(context.Background(), QuoteRequest{
		Items:         []ItemRequest{{ProductID: "water", Quantity: 1}},
		PromotionCode: "TENOFF",
	})
	require.ErrorIs(t, err, ErrNotApplicable)
	var na *NotApplicableError
	require.ErrorAs(t, err, &na)
	assert.Equal(t, promotion.ReasonMinOrderValue, na.Eligibility.Reason)

	assert.Nil(t, f.receipts.last)
	assert.Empty(t, f.promotions.incremented)
}

func TestService_CompleteReceiptError(t *testing.T) {
	f := newFixture(t)
	f.receipts.err = errors.New("insert failed")

	_, err := f.svc.Complete(context.Background(), QuoteRequest{Items: scenarioItems(), PromotionCode: "FLAT"})
	require.Error(t, err)
	assert.Empty(t, f.promotions.incremented)
}
