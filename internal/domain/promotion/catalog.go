package promotion

import (
	"time"
)

// Catalog is a read-only, ordered snapshot of compiled promotions. Catalog
// order is the combo priority order used by Detect.
type Catalog struct {
	items  []*Promotion
	byCode map[string]*Promotion
}

// NewCatalog compiles defs in order. Invalid or duplicate definitions are
// skipped and returned as errors; they never become selectable.
func NewCatalog(defs []Definition, now time.Time) (*Catalog, []error) {
	c := &Catalog{
		items:  make([]*Promotion, 0, len(defs)),
		byCode: make(map[string]*Promotion, len(defs)),
	}

	var rejected []error
	for _, def := range defs {
		p, err := Compile(def, now)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		if _, dup := c.byCode[p.Code]; dup {
			rejected = append(rejected, &InvalidError{Code: p.Code, Reason: "duplicate code"})
			continue
		}
		c.items = append(c.items, p)
		c.byCode[p.Code] = p
	}

	return c, rejected
}

// All returns every promotion in catalog order.
func (c *Catalog) All() []*Promotion {
	return c.items
}

// Len returns the number of promotions.
func (c *Catalog) Len() int {
	return len(c.items)
}

// Lookup returns the promotion with the given code.
func (c *Catalog) Lookup(code string) (*Promotion, bool) {
	p, ok := c.byCode[code]
	return p, ok
}

// Combos returns the combo promotions in catalog order.
func (c *Catalog) Combos() []*Promotion {
	var out []*Promotion
	for _, p := range c.items {
		if p.Kind() == KindCombo {
			out = append(out, p)
		}
	}
	return out
}
