package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for cart mutations.
var (
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrLineNotFound    = errors.New("line not found")
	ErrProductNotFound = errors.New("product not found")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Is reports whether target is ErrProductNotFound.
func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// Product is a sellable menu entry as it is added to the cart.
type Product struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
	// Surcharge is the active customization surcharge (extra shot, oat milk)
	// folded into the line unit price.
	Surcharge decimal.Decimal
}

// UnitPrice returns the price of a single unit including the surcharge.
func (p Product) UnitPrice() decimal.Decimal {
	return p.Price.Add(p.Surcharge)
}

// ProductRepository defines read operations for the menu.
type ProductRepository interface {
	List(ctx context.Context) ([]Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// LineItem is one product line in the cart. Quantity is always at least 1;
// removal deletes the line.
type LineItem struct {
	ID        string
	Name      string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
	// Combo marks a line assembled from a combo offer. Combo lines never
	// count towards combo matching.
	Combo bool
}

// Subtotal returns UnitPrice * Quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered snapshot of line items. The zero value is an empty cart.
type Cart struct {
	Lines []LineItem
}

// New returns a cart holding a copy of lines.
func New(lines ...LineItem) Cart {
	return Cart{Lines: append([]LineItem(nil), lines...)}
}

// Subtotal sums UnitPrice * Quantity over every line, combo lines included.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// Len returns the number of lines.
func (c Cart) Len() int {
	return len(c.Lines)
}

// Clone returns a deep copy so hypothetical mutations never leak into c.
func (c Cart) Clone() Cart {
	return New(c.Lines...)
}

// index returns the position of the first loose (non-combo) line with the
// given id.
func (c Cart) index(id string) int {
	for i, l := range c.Lines {
		if l.ID == id && !l.Combo {
			return i
		}
	}
	return -1
}

// lineIndex returns the position of the loose line keyed by id and unit
// price.
func (c Cart) lineIndex(id string, unit decimal.Decimal) int {
	for i, l := range c.Lines {
		if l.ID == id && !l.Combo && l.UnitPrice.Equal(unit) {
			return i
		}
	}
	return -1
}

// Find returns the first loose line for the given id. A product with
// several customizations has one line per unit price; use FindLine to pick
// one of them.
func (c Cart) Find(id string) (LineItem, bool) {
	return c.at(c.index(id))
}

// FindLine returns the loose line keyed by id and unit price.
func (c Cart) FindLine(id string, unit decimal.Decimal) (LineItem, bool) {
	return c.at(c.lineIndex(id, unit))
}

func (c Cart) at(i int) (LineItem, bool) {
	if i < 0 {
		return LineItem{}, false
	}
	return c.Lines[i], true
}

// WithUnit returns a copy of c with one more unit of p: the matching line's
// quantity is incremented, or a new line with quantity 1 is appended.
func (c Cart) WithUnit(p Product) Cart {
	next := c.Clone()
	next.addUnits(p, 1)
	return next
}

// Add appends qty units of p to the cart.
func (c *Cart) Add(p Product, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	c.addUnits(p, qty)
	return nil
}

func (c *Cart) addUnits(p Product, qty int) {
	// Lines are keyed by product and unit price, so the same drink with a
	// different customization gets its own line.
	unit := p.UnitPrice()
	for i, l := range c.Lines {
		if l.ID == p.ID && !l.Combo && l.UnitPrice.Equal(unit) {
			c.Lines[i].Quantity += qty
			return
		}
	}
	c.Lines = append(c.Lines, LineItem{
		ID:        p.ID,
		Name:      p.Name,
		Category:  p.Category,
		UnitPrice: unit,
		Quantity:  qty,
	})
}

// SetQuantity changes the quantity of the first loose line with the given
// id. A quantity of zero or less removes the line. Use SetLineQuantity when
// the product has lines at several unit prices.
func (c *Cart) SetQuantity(id string, qty int) error {
	return c.setQuantityAt(c.index(id), id, qty)
}

// SetLineQuantity changes the quantity of the loose line keyed by id and
// unit price. A quantity of zero or less removes the line.
func (c *Cart) SetLineQuantity(id string, unit decimal.Decimal, qty int) error {
	return c.setQuantityAt(c.lineIndex(id, unit), id, qty)
}

func (c *Cart) setQuantityAt(i int, id string, qty int) error {
	if i < 0 {
		return errors.Wrapf(ErrLineNotFound, "set quantity of %q", id)
	}
	if qty <= 0 {
		c.removeAt(i)
		return nil
	}
	c.Lines[i].Quantity = qty
	return nil
}

// Remove deletes the line with the given id. Combo lines are matched too.
func (c *Cart) Remove(id string) error {
	for i, l := range c.Lines {
		if l.ID == id {
			c.removeAt(i)
			return nil
		}
	}
	return errors.Wrapf(ErrLineNotFound, "remove %q", id)
}

func (c *Cart) removeAt(i int) {
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
}

// ReplaceWithCombo takes the consumed units out of the loose lines and adds
// combo in their place. Each consumed entry is matched by product id and unit
// price and decrements that line, which is removed only when it reaches
// zero. A combo line with the same id and price is merged by quantity.
func (c *Cart) ReplaceWithCombo(consumed []LineItem, combo LineItem) {
	for _, u := range consumed {
		remaining := u.Quantity
		for i := 0; i < len(c.Lines) && remaining > 0; i++ {
			l := &c.Lines[i]
			if l.Combo || l.ID != u.ID || !l.UnitPrice.Equal(u.UnitPrice) {
				continue
			}
			n := min(remaining, l.Quantity)
			l.Quantity -= n
			remaining -= n
			if l.Quantity == 0 {
				c.removeAt(i)
				i--
			}
		}
	}

	combo.Combo = true
	if combo.Quantity <= 0 {
		combo.Quantity = 1
	}
	for i, l := range c.Lines {
		if l.Combo && l.ID == combo.ID && l.UnitPrice.Equal(combo.UnitPrice) {
			c.Lines[i].Quantity += combo.Quantity
			return
		}
	}
	c.Lines = append(c.Lines, combo)
}
