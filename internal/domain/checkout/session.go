package checkout

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
	"github.com/xenking/cafe-promotions/internal/domain/customer"
	"github.com/xenking/cafe-promotions/internal/domain/loyalty"
	"github.com/xenking/cafe-promotions/internal/domain/promotion"
)

// Session errors.
var (
	ErrPendingCombo   = errors.New("a combo suggestion is awaiting an answer")
	ErrNoPendingCombo = errors.New("no combo suggestion pending")
)

// Session is the live checkout-preparation state of one cart: the cart
// itself, the attached customer, at most one selected offer, the points to
// redeem and the set of combo suggestions the operator dismissed.
//
// The HTTP API is stateless and does not hold sessions; a till embeds one
// per open cart. A Session is not safe for concurrent use.
type Session struct {
	catalog  *promotion.Catalog
	redeemer loyalty.Redeemer

	cart      cart.Cart
	customer  *customer.Customer
	selected  *promotion.Promotion
	points    int
	dismissed map[string]struct{}
	pending   *pendingAdd
}

type pendingAdd struct {
	product   cart.Product
	detection *promotion.Detection
}

// NewSession starts an empty session over catalog.
func NewSession(catalog *promotion.Catalog, redeemer loyalty.Redeemer) *Session {
	return &Session{
		catalog:   catalog,
		redeemer:  redeemer,
		dismissed: make(map[string]struct{}),
	}
}

// Cart returns a copy of the current cart.
func (s *Session) Cart() cart.Cart { return s.cart.Clone() }

// Customer returns the attached customer, nil when none.
func (s *Session) Customer() *customer.Customer { return s.customer }

// Selected returns the selected offer, nil when none.
func (s *Session) Selected() *promotion.Promotion { return s.selected }

// Points returns the clamped points to redeem.
func (s *Session) Points() int { return s.points }

// Pending returns the combo suggestion awaiting an answer, if any.
func (s *Session) Pending() *promotion.Detection {
	if s.pending == nil {
		return nil
	}
	return s.pending.detection
}

// Dismissed returns the dismissed combo codes in sorted order.
func (s *Session) Dismissed() []string {
	out := make([]string, 0, len(s.dismissed))
	for code := range s.dismissed {
		out = append(out, code)
	}
	slices.Sort(out)
	return out
}

// AddProduct adds one unit of p. When the addition would newly satisfy a
// combo that was not dismissed, nothing is committed: the suggestion is
// returned and held until AcceptCombo or DeclineCombo.
func (s *Session) AddProduct(p cart.Product) (*promotion.Detection, error) {
	if s.pending != nil {
		return nil, ErrPendingCombo
	}

	if det := promotion.Detect(s.cart, p, s.candidateCombos()); det != nil {
		s.pending = &pendingAdd{product: p, detection: det}
		return det, nil
	}

	s.cart.Lines = s.cart.WithUnit(p).Lines
	s.revalidate()
	return nil, nil
}

// AcceptCombo commits the held addition and folds the consumed units into
// one combo line priced at the suggestion's combo price. Spare units stay
// as loose lines and can feed a later repetition.
func (s *Session) AcceptCombo() error {
	if s.pending == nil {
		return ErrNoPendingCombo
	}
	det := s.pending.detection

	s.cart.Lines = s.cart.WithUnit(s.pending.product).Lines
	s.cart.ReplaceWithCombo(det.Consumed, det.ComboLine())
	s.pending = nil
	s.revalidate()
	return nil
}

// DeclineCombo commits the held addition as a plain item and stops
// suggesting the same combo for this session.
func (s *Session) DeclineCombo() error {
	if s.pending == nil {
		return ErrNoPendingCombo
	}
	s.dismissed[s.pending.detection.ComboCode] = struct{}{}
	s.cart.Lines = s.cart.WithUnit(s.pending.product).Lines
	s.pending = nil
	s.revalidate()
	return nil
}

// SetQuantity changes the quantity of the first loose line for id; zero or
// less removes the line.
func (s *Session) SetQuantity(id string, qty int) error {
	if err := s.cart.SetQuantity(id, qty); err != nil {
		return err
	}
	s.revalidate()
	return nil
}

// SetLineQuantity is SetQuantity for the line keyed by id and unit price,
// for products carried at more than one customization.
func (s *Session) SetLineQuantity(id string, unit decimal.Decimal, qty int) error {
	if err := s.cart.SetLineQuantity(id, unit, qty); err != nil {
		return err
	}
	s.revalidate()
	return nil
}

// Remove deletes a line, combo lines included.
func (s *Session) Remove(id string) error {
	if err := s.cart.Remove(id); err != nil {
		return err
	}
	s.revalidate()
	return nil
}

// AttachCustomer attaches c, replacing any previous customer.
func (s *Session) AttachCustomer(c *customer.Customer) {
	s.customer = c
	s.revalidate()
}

// DetachCustomer detaches the customer. Customer-targeted selections and
// redeemed points are dropped.
func (s *Session) DetachCustomer() {
	s.customer = nil
	s.revalidate()
}

// Select selects the offer with the given code in place of the current one.
// The offer must be applicable against the current state, so an offer that
// conflicts with the current selection is refused until it is deselected.
func (s *Session) Select(code string) error {
	p, ok := s.catalog.Lookup(code)
	if !ok {
		return errors.Wrapf(promotion.ErrNotFound, "select %q", code)
	}
	if e := promotion.Evaluate(p, s.cart, s.customer, s.selected); !e.Applicable {
		return &NotApplicableError{Code: code, Eligibility: e}
	}
	s.selected = p
	return nil
}

// Deselect clears the selected offer.
func (s *Session) Deselect() {
	s.selected = nil
}

// SetPoints sets the points to redeem, clamped to the customer balance, and
// returns the clamped value.
func (s *Session) SetPoints(points int) int {
	s.points = loyalty.Clamp(points, s.customer)
	return s.points
}

// Quote evaluates the current state.
func (s *Session) Quote() (Summary, error) {
	in := Input{
		Cart:     s.cart,
		Customer: s.customer,
		Points:   s.points,
	}
	if s.selected != nil {
		in.Selected = s.selected.Code
	}
	return Quote(s.catalog, s.redeemer, in)
}

// candidateCombos returns the catalog combos that were not dismissed, in
// catalog order.
func (s *Session) candidateCombos() []*promotion.Promotion {
	combos := s.catalog.Combos()
	out := combos[:0:0]
	for _, p := range combos {
		if _, ok := s.dismissed[p.Code]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// revalidate re-runs eligibility for the selected offer after any state
// change and drops it when it no longer applies; points are re-clamped.
func (s *Session) revalidate() {
	if s.selected != nil {
		if e := promotion.Evaluate(s.selected, s.cart, s.customer, s.selected); !e.Applicable {
			s.selected = nil
		}
	}
	s.points = loyalty.Clamp(s.points, s.customer)
}
