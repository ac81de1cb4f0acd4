// Package handler exposes the checkout engine as a JSON HTTP API.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
	"github.com/xenking/cafe-promotions/internal/domain/checkout"
	"github.com/xenking/cafe-promotions/internal/domain/customer"
	"github.com/xenking/cafe-promotions/internal/domain/loyalty"
	"github.com/xenking/cafe-promotions/internal/domain/promotion"
)

const maxBodyBytes = 1 << 20

// Checkout is the subset of *checkout.Service the API needs.
type Checkout interface {
	Quote(ctx context.Context, req checkout.QuoteRequest) (*checkout.Summary, error)
	DetectCombo(ctx context.Context, req checkout.DetectRequest) (*promotion.Detection, error)
	Complete(ctx context.Context, req checkout.QuoteRequest) (*checkout.Receipt, error)
	Catalog(ctx context.Context) (*promotion.Catalog, []error, error)
}

var _ Checkout = (*checkout.Service)(nil)

// Handler serves the /api routes.
type Handler struct {
	checkout Checkout
	products cart.ProductRepository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(svc Checkout, products cart.ProductRepository) *Handler {
	return &Handler{checkout: svc, products: products}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/promotions", h.ListPromotions)
	mux.HandleFunc("POST /api/quote", h.Quote)
	mux.HandleFunc("POST /api/combos/detect", h.DetectCombo)
	mux.HandleFunc("POST /api/checkout", h.Checkout)
}

// ListProducts returns the menu.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProducts(e, products) })
}

// ListPromotions returns the compiled catalog in priority order.
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	catalog, rejected, err := h.checkout.Catalog(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, err := range rejected {
		zctx.From(r.Context()).Warn("Skipping invalid promotion", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePromotions(e, catalog.All()) })
}

// Quote evaluates a cart.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r, decodeQuoteRequest)
	if !ok {
		return
	}
	summary, err := h.checkout.Quote(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSummary(e, summary) })
}

// DetectCombo reports the combo a single added unit would complete.
func (h *Handler) DetectCombo(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r, decodeDetectRequest)
	if !ok {
		return
	}
	det, err := h.checkout.DetectCombo(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("combo", func(e *jx.Encoder) { encodeDetection(e, det) })
		})
	})
}

// Checkout completes a sale and returns the receipt.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r, decodeQuoteRequest)
	if !ok {
		return
	}
	receipt, err := h.checkout.Complete(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeReceipt(e, receipt) })
}

// decodeBody reads a bounded body and decodes it with fn. On failure it
// writes a 400 and returns false.
func decodeBody[T any](w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder) (T, error)) (T, bool) {
	var zero T
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "read body: "+err.Error())
		return zero, false
	}
	v, err := fn(jx.DecodeBytes(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return zero, false
	}
	return v, true
}

// fail maps domain errors to API errors. Unknown errors are logged and
// reported as 500 without details.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr  *checkout.InvalidQuantityError
		pnfErr *cart.ProductNotFoundError
		naErr  *checkout.NotApplicableError
		oorErr *loyalty.OutOfRangeError
	)
	switch {
	case errors.Is(err, checkout.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, "empty_items", err.Error())
	case errors.As(err, &iqErr):
		writeError(w, http.StatusBadRequest, "invalid_quantity", iqErr.Error())
	case errors.As(err, &pnfErr):
		writeError(w, http.StatusNotFound, "product_not_found", pnfErr.Error())
	case errors.Is(err, customer.ErrNotFound):
		writeError(w, http.StatusNotFound, "customer_not_found", "customer not found")
	case errors.Is(err, promotion.ErrNotFound):
		writeError(w, http.StatusNotFound, "promotion_not_found", err.Error())
	case errors.As(err, &naErr):
		writeError(w, http.StatusUnprocessableEntity, string(naErr.Eligibility.Reason), naErr.Eligibility.Text)
	case errors.Is(err, promotion.ErrUsageExhausted):
		writeError(w, http.StatusUnprocessableEntity, string(promotion.ReasonUsageExhausted), "promotion usage limit reached")
	case errors.Is(err, customer.ErrInsufficientPoints), errors.As(err, &oorErr):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_points", err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}
