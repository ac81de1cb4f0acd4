package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
	"github.com/xenking/cafe-promotions/internal/domain/checkout"
	"github.com/xenking/cafe-promotions/internal/domain/customer"
	"github.com/xenking/cafe-promotions/internal/domain/loyalty"
	"github.com/xenking/cafe-promotions/internal/domain/promotion"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// --- In-memory repositories ---

type memProducts []cart.Product

func (m memProducts) List(context.Context) ([]cart.Product, error) { return m, nil }

func (m memProducts) GetByIDs(_ context.Context, ids []string) ([]cart.Product, error) {
	var out []cart.Product
	for _, p := range m {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

type memCustomers map[string]*customer.Customer

func (m memCustomers) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := m[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m memCustomers) DeductPoints(_ context.Context, id string, points int) error {
	c, ok := m[id]
	if !ok {
		return customer.ErrNotFound
	}
	if c.LoyaltyPoints < points {
		return customer.ErrInsufficientPoints
	}
	c.LoyaltyPoints -= points
	return nil
}

type memPromotions struct{ defs []promotion.Definition }

func (m *memPromotions) List(context.Context) ([]promotion.Definition, error) { return m.defs, nil }

func (m *memPromotions) IncrementUsage(_ context.Context, code string) error {
	for i := range m.defs {
		if m.defs[i].Code == code {
			m.defs[i].CurrentUsage++
			return nil
		}
	}
	return promotion.ErrNotFound
}

type memReceipts struct{ saved []*checkout.Receipt }

func (m *memReceipts) Create(_ context.Context, r *checkout.Receipt) error {
	m.saved = append(m.saved, r)
	return nil
}

// --- Helpers ---

func newTestServer(t *testing.T) (*httptest.Server, *memReceipts) {
	t.Helper()

	products := memProducts{
		{ID: "latte", Name: "Latte", Category: "coffee", Price: d("35000")},
		{ID: "croissant", Name: "Croissant", Category: "pastry", Price: d("50000")},
	}
	customers := memCustomers{
		"c1": {ID: "c1", Name: "Ana", Tier: customer.TierGold, LoyaltyPoints: 250},
	}
	promos := &memPromotions{defs: []promotion.Definition{
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
		},
		{Code: "BROKEN", Kind: "bogo"},
	}}
	receipts := &memReceipts{}

	svc, err := checkout.NewService(products, customers, promos, receipts, loyalty.NewRedeemer(loyalty.DefaultPointValue))
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewHandler(svc, products).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, receipts
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// --- Tests ---

func TestQuote(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := post(t, srv, "/api/quote", `{
		"items": [{"productId":"latte","quantity":2},{"productId":"croissant","quantity":1}],
		"customerId": "c1",
		"promotionCode": "TENOFF",
		"points": 300
	}`)

	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 120000, body["subtotal"])
	assert.EqualValues(t, 12000, body["discountTotal"])
	assert.EqualValues(t, 250, body["pointsRedeemed"])
	assert.EqualValues(t, 2500, body["pointsValue"])
	assert.EqualValues(t, 105500, body["finalPayable"])
	assert.Equal(t, "TENOFF", body["selected"])

	offers, ok := body["offers"].([]any)
	require.True(t, ok)
	require.Len(t, offers, 2)
	combo := offers[0].(map[string]any)
	assert.Equal(t, "COMBO1CF", combo["code"])
	assert.Equal(t, true, combo["applicable"])
	assert.EqualValues(t, 1, combo["combo"].(map[string]any)["repetitions"])
}

func TestQuote_RejectedSelection(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := post(t, srv, "/api/quote", `{"items":[{"productId":"latte","quantity":1}],"promotionCode":"TENOFF"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["selected"])

	rejected := body["rejected"].(map[string]any)
	assert.Equal(t, "min_order_value", rejected["reason"])
	assert.EqualValues(t, 35000, body["finalPayable"])
}

func TestQuote_Errors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "malformed", body: `{"items":`, wantCode: http.StatusBadRequest, wantErr: "bad_request"},
		{name: "empty items", body: `{"items":[]}`, wantCode: http.StatusBadRequest, wantErr: "empty_items"},
		{name: "zero quantity", body: `{"items":[{"productId":"latte","quantity":0}]}`, wantCode: http.StatusBadRequest, wantErr: "invalid_quantity"},
		{name: "unknown product", body: `{"items":[{"productId":"tea","quantity":1}]}`, wantCode: http.StatusNotFound, wantErr: "product_not_found"},
		{name: "unknown customer", body: `{"items":[{"productId":"latte","quantity":1}],"customerId":"ghost"}`, wantCode: http.StatusNotFound, wantErr: "customer_not_found"},
		{name: "unknown promotion", body: `{"items":[{"productId":"latte","quantity":1}],"promotionCode":"BROKEN"}`, wantCode: http.StatusNotFound, wantErr: "promotion_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := post(t, srv, "/api/quote", tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantErr, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestDetectCombo(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := post(t, srv, "/api/combos/detect", `{"items":[{"productId":"latte","quantity":1}],"productId":"croissant"}`)
	require.Equal(t, http.StatusOK, code)
	combo := body["combo"].(map[string]any)
	assert.Equal(t, "COMBO1CF", combo["comboCode"])
	assert.EqualValues(t, 85000, combo["originalPrice"])
	assert.EqualValues(t, 65000, combo["finalPrice"])
	assert.EqualValues(t, 65000, combo["comboPrice"])
	assert.Len(t, combo["consumed"], 2)

	// Spare coffee units are not part of the combo line.
	code, body = post(t, srv, "/api/combos/detect", `{"items":[{"productId":"latte","quantity":3}],"productId":"croissant"}`)
	require.Equal(t, http.StatusOK, code)
	combo = body["combo"].(map[string]any)
	assert.EqualValues(t, 155000, combo["originalPrice"])
	assert.EqualValues(t, 65000, combo["comboPrice"])
	consumed := combo["consumed"].([]any)
	require.Len(t, consumed, 2)
	assert.EqualValues(t, 1, consumed[0].(map[string]any)["quantity"])

	code, body = post(t, srv, "/api/combos/detect", `{"items":[{"productId":"latte","quantity":1}],"productId":"croissant","dismissed":["COMBO1CF"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["combo"])

	code, body = post(t, srv, "/api/combos/detect", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", body["code"])
}

func TestCheckout(t *testing.T) {
	srv, receipts := newTestServer(t)

	code, body := post(t, srv, "/api/checkout", `{
		"items": [{"productId":"latte","quantity":1,"surcharge":"5000"},{"productId":"croissant","quantity":1}],
		"customerId": "c1",
		"promotionCode": "COMBO1CF",
		"points": 100
	}`)
	require.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "COMBO1CF", body["promotionCode"])
	assert.EqualValues(t, 90000, body["subtotal"])
	assert.EqualValues(t, 69000, body["total"])
	require.Len(t, receipts.saved, 1)

	code, body = post(t, srv, "/api/checkout", `{"items":[{"productId":"latte","quantity":1}],"promotionCode":"TENOFF"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "min_order_value", body["code"])
	assert.Len(t, receipts.saved, 1)
}

func TestListings(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/promotions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var promos []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&promos))
	require.Len(t, promos, 2)
	assert.Equal(t, "combo", promos[0]["kind"])
	assert.Len(t, promos[0]["requiredItems"], 2)
	assert.EqualValues(t, 100000, promos[1]["minOrderValue"])

	resp, err = http.Get(srv.URL + "/api/products")
	require.NoError(t, err)
	defer resp.Body.Close()

	var products []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	assert.Len(t, products, 2)
}
