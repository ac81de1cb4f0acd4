package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
	"github.com/xenking/cafe-promotions/internal/domain/customer"
	"github.com/xenking/cafe-promotions/internal/domain/loyalty"
	"github.com/xenking/cafe-promotions/internal/domain/promotion"
)

// Sentinel errors for request validation.
var (
	ErrEmptyItems = errors.New("items required")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ItemRequest is one requested cart line.
type ItemRequest struct {
	ProductID string
	Quantity  int
	Surcharge decimal.Decimal
}

// QuoteRequest is the input of Quote and Complete.
type QuoteRequest struct {
	Items         []ItemRequest
	CustomerID    string
	PromotionCode string
	Points        int
}

// DetectRequest asks whether adding one unit of ProductID to Items would
// newly satisfy a combo. Dismissed combo codes are never suggested.
type DetectRequest struct {
	Items     []ItemRequest
	ProductID string
	Dismissed []string
}

// Receipt is a completed checkout.
type Receipt struct {
	ID             string
	Lines          []cart.LineItem
	CustomerID     string
	PromotionCode  string
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	PointsRedeemed int
	PointsValue    decimal.Decimal
	Total          decimal.Decimal
	CreatedAt      time.Time
}

// ReceiptRepository persists completed checkouts.
type ReceiptRepository interface {
	Create(ctx context.Context, r *Receipt) error
}

// Service runs quotes, combo detection and checkout completion against the
// stored menu, customers and promotion catalog.
type Service struct {
	products   cart.ProductRepository
	customers  customer.Repository
	promotions promotion.Repository
	receipts   ReceiptRepository
	redeemer   loyalty.Redeemer
	now        func() time.Time

	tracer      trace.Tracer
	quotes      metric.Int64Counter
	detections  metric.Int64Counter
	completions metric.Int64Counter
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMeterProvider sets the meter provider for service metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *serviceOptions) { o.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *serviceOptions) { o.tracerProvider = tp }
}

// NewService creates a checkout Service with the required dependencies.
func NewService(
	products cart.ProductRepository,
	customers customer.Repository,
	promotions promotion.Repository,
	receipts ReceiptRepository,
	redeemer loyalty.Redeemer,
	opts ...Option,
) (*Service, error) {
	o := serviceOptions{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	const name = "github.com/xenking/cafe-promotions/internal/domain/checkout"
	meter := o.meterProvider.Meter(name)

	s := &Service{
		products:   products,
		customers:  customers,
		promotions: promotions,
		receipts:   receipts,
		redeemer:   redeemer,
		now:        time.Now,
		tracer:     o.tracerProvider.Tracer(name),
	}

	var err error
	if s.quotes, err = meter.Int64Counter("checkout.quotes",
		metric.WithDescription("Quotes evaluated")); err != nil {
		return nil, errors.Wrap(err, "quotes counter")
	}
	if s.detections, err = meter.Int64Counter("checkout.combo_detections",
		metric.WithDescription("Combo suggestions raised")); err != nil {
		return nil, errors.Wrap(err, "detections counter")
	}
	if s.completions, err = meter.Int64Counter("checkout.completions",
		metric.WithDescription("Completed checkouts")); err != nil {
		return nil, errors.Wrap(err, "completions counter")
	}

	return s, nil
}

// Catalog loads and compiles the promotion catalog. Rejected definitions are
// returned next to the catalog so the caller can report them.
func (s *Service) Catalog(ctx context.Context) (*promotion.Catalog, []error, error) {
	defs, err := s.promotions.List(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list promotions")
	}
	catalog, rejected := promotion.NewCatalog(defs, s.now())
	return catalog, rejected, nil
}

// Quote builds the cart from stored prices and evaluates it.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Summary, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Quote")
	defer span.End()

	summary, _, err := s.quote(ctx, req)
	if err != nil {
		return nil, err
	}
	s.quotes.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("promotion.applied", summary.Selected != nil),
	))
	return summary, nil
}

func (s *Service) quote(ctx context.Context, req QuoteRequest) (*Summary, cart.Cart, error) {
	c, err := s.buildCart(ctx, req.Items)
	if err != nil {
		return nil, cart.Cart{}, err
	}

	catalog, cust, err := s.loadState(ctx, req.CustomerID)
	if err != nil {
		return nil, cart.Cart{}, err
	}

	summary, err := Quote(catalog, s.redeemer, Input{
		Cart:     c,
		Customer: cust,
		Selected: req.PromotionCode,
		Points:   req.Points,
	})
	if err != nil {
		return nil, cart.Cart{}, err
	}
	return &summary, c, nil
}

// DetectCombo reports the combo that adding one unit of the requested
// product would newly satisfy, or nil.
func (s *Service) DetectCombo(ctx context.Context, req DetectRequest) (*promotion.Detection, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.DetectCombo")
	defer span.End()

	c, err := s.buildCart(ctx, req.Items)
	if err != nil && !errors.Is(err, ErrEmptyItems) {
		return nil, err
	}

	incoming, err := s.products.GetByIDs(ctx, []string{req.ProductID})
	if err != nil {
		return nil, errors.Wrap(err, "get incoming product")
	}
	if len(incoming) == 0 {
		return nil, &cart.ProductNotFoundError{ProductID: req.ProductID}
	}

	catalog, _, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	dismissed := make(map[string]struct{}, len(req.Dismissed))
	for _, code := range req.Dismissed {
		dismissed[code] = struct{}{}
	}
	var combos []*promotion.Promotion
	for _, p := range catalog.Combos() {
		if _, ok := dismissed[p.Code]; !ok {
			combos = append(combos, p)
		}
	}

	det := promotion.Detect(c, incoming[0], combos)
	if det != nil {
		s.detections.Add(ctx, 1, metric.WithAttributes(attribute.String("combo.code", det.ComboCode)))
	}
	return det, nil
}

// Complete re-quotes the request, refuses a requested offer that is not
// applicable, persists the receipt and updates the usage and point ledgers.
func (s *Service) Complete(ctx context.Context, req QuoteRequest) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Complete")
	defer span.End()

	summary, c, err := s.quote(ctx, req)
	if err != nil {
		return nil, err
	}
	if summary.Rejected != nil {
		return nil, summary.Rejected
	}

	r := &Receipt{
		ID:             uuid.New().String(),
		Lines:          c.Lines,
		CustomerID:     req.CustomerID,
		Subtotal:       summary.Subtotal,
		Discount:       summary.DiscountTotal,
		PointsRedeemed: summary.PointsRedeemed,
		PointsValue:    summary.PointsValue,
		Total:          summary.FinalPayable,
		CreatedAt:      s.now(),
	}
	if summary.Selected != nil {
		r.PromotionCode = summary.Selected.Code
	}

	if err := s.receipts.Create(ctx, r); err != nil {
		return nil, errors.Wrap(err, "create receipt")
	}
	if r.PromotionCode != "" {
		if err := s.promotions.IncrementUsage(ctx, r.PromotionCode); err != nil {
			return nil, errors.Wrap(err, "increment promotion usage")
		}
	}
	if r.PointsRedeemed > 0 {
		if err := s.customers.DeductPoints(ctx, r.CustomerID, r.PointsRedeemed); err != nil {
			return nil, errors.Wrap(err, "deduct points")
		}
	}

	s.completions.Add(ctx, 1)
	return r, nil
}

// buildCart validates the requested items and prices them from the menu in
// a single batch lookup.
func (s *Service) buildCart(ctx context.Context, items []ItemRequest) (cart.Cart, error) {
	if len(items) == 0 {
		return cart.Cart{}, ErrEmptyItems
	}

	ids := make([]string, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return cart.Cart{}, &InvalidQuantityError{ProductID: item.ProductID}
		}
		if item.Surcharge.IsNegative() {
			return cart.Cart{}, errors.Errorf("surcharge must not be negative for product %s", item.ProductID)
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return cart.Cart{}, errors.Wrap(err, "get products")
	}
	byID := make(map[string]cart.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	var c cart.Cart
	for _, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return cart.Cart{}, &cart.ProductNotFoundError{ProductID: item.ProductID}
		}
		p.Surcharge = item.Surcharge
		if err := c.Add(p, item.Quantity); err != nil {
			return cart.Cart{}, errors.Wrapf(err, "add %s", item.ProductID)
		}
	}
	return c, nil
}

// loadState loads the catalog and the optional customer concurrently.
func (s *Service) loadState(ctx context.Context, customerID string) (*promotion.Catalog, *customer.Customer, error) {
	var (
		catalog *promotion.Catalog
		cust    *customer.Customer
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, _, err := s.Catalog(gctx)
		catalog = c
		return err
	})
	if customerID != "" {
		g.Go(func() error {
			c, err := s.customers.GetByID(gctx, customerID)
			if err != nil {
				return errors.Wrap(err, "get customer")
			}
			cust = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return catalog, cust, nil
}
