package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/cart"
	"github.com/xenking/cafe-promotions/internal/domain/checkout"
	"github.com/xenking/cafe-promotions/internal/domain/promotion"
)

// money writes amounts as JSON numbers with two decimals.
func money(e *jx.Encoder, name string, v decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { e.Raw([]byte(v.StringFixed(2))) })
}

func str(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func optStr(e *jx.Encoder, name, v string) {
	if v != "" {
		str(e, name, v)
	}
}

func integer(e *jx.Encoder, name string, v int) {
	e.Field(name, func(e *jx.Encoder) { e.Int(v) })
}

func boolean(e *jx.Encoder, name string, v bool) {
	e.Field(name, func(e *jx.Encoder) { e.Bool(v) })
}

func encodeProducts(e *jx.Encoder, products []cart.Product) {
	e.Arr(func(e *jx.Encoder) {
		for _, p := range products {
			e.Obj(func(e *jx.Encoder) {
				str(e, "id", p.ID)
				str(e, "name", p.Name)
				str(e, "category", p.Category)
				money(e, "price", p.Price)
			})
		}
	})
}

func encodePromotions(e *jx.Encoder, promos []*promotion.Promotion) {
	e.Arr(func(e *jx.Encoder) {
		for _, p := range promos {
			e.Obj(func(e *jx.Encoder) {
				encodePromotionFields(e, p)
				boolean(e, "active", p.Active)
				if p.MinOrderValue.Valid {
					money(e, "minOrderValue", p.MinOrderValue.Decimal)
				}
				if p.MaxUsage > 0 {
					integer(e, "maxUsage", p.MaxUsage)
				}
				integer(e, "currentUsage", p.CurrentUsage)
				if cond, ok := p.Combo(); ok {
					e.Field("requiredItems", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, item := range cond.RequiredItems {
								e.Obj(func(e *jx.Encoder) {
									str(e, "category", item.Category)
									integer(e, "minQuantity", item.MinQuantity)
								})
							}
						})
					})
				}
			})
		}
	})
}

func encodePromotionFields(e *jx.Encoder, p *promotion.Promotion) {
	str(e, "code", p.Code)
	str(e, "name", p.Name)
	optStr(e, "description", p.Description)
	str(e, "kind", string(p.Kind()))
}

func encodeLines(e *jx.Encoder, lines []cart.LineItem) {
	e.Arr(func(e *jx.Encoder) {
		for _, l := range lines {
			e.Obj(func(e *jx.Encoder) {
				str(e, "id", l.ID)
				str(e, "name", l.Name)
				optStr(e, "category", l.Category)
				money(e, "unitPrice", l.UnitPrice)
				integer(e, "quantity", l.Quantity)
				if l.Combo {
					boolean(e, "combo", true)
				}
			})
		}
	})
}

func encodeComboMatch(e *jx.Encoder, m *promotion.ComboMatch) {
	e.Obj(func(e *jx.Encoder) {
		boolean(e, "satisfied", m.Satisfied)
		integer(e, "repetitions", m.Repetitions)
		money(e, "totalDiscount", m.TotalDiscount)
		e.Field("missing", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, s := range m.Missing {
					e.Obj(func(e *jx.Encoder) {
						str(e, "category", s.Category)
						integer(e, "needed", s.Missing())
						integer(e, "available", s.Available)
					})
				}
			})
		})
	})
}

func encodeSummary(e *jx.Encoder, s *checkout.Summary) {
	e.Obj(func(e *jx.Encoder) {
		money(e, "subtotal", s.Subtotal)
		e.Field("selected", func(e *jx.Encoder) {
			if s.Selected == nil {
				e.Null()
				return
			}
			e.Str(s.Selected.Code)
		})
		if s.Rejected != nil {
			e.Field("rejected", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					str(e, "code", s.Rejected.Code)
					str(e, "reason", string(s.Rejected.Eligibility.Reason))
					str(e, "message", s.Rejected.Eligibility.Text)
				})
			})
		}
		if c := s.Calculation; c != nil {
			e.Field("calculation", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					money(e, "orderDiscount", c.OrderDiscount)
					e.Field("perItem", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, l := range c.PerItem {
								e.Obj(func(e *jx.Encoder) {
									str(e, "lineId", l.LineID)
									str(e, "name", l.LineName)
									money(e, "amount", l.Amount)
								})
							}
						})
					})
					money(e, "total", c.Total)
				})
			})
		}
		money(e, "discountTotal", s.DiscountTotal)
		integer(e, "pointsRedeemed", s.PointsRedeemed)
		money(e, "pointsValue", s.PointsValue)
		money(e, "totalSavings", s.TotalSavings)
		money(e, "finalPayable", s.FinalPayable)
		e.Field("offers", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, o := range s.Offers {
					e.Obj(func(e *jx.Encoder) {
						encodePromotionFields(e, o.Promotion)
						boolean(e, "applicable", o.Eligibility.Applicable)
						boolean(e, "selected", o.Selected)
						optStr(e, "reason", string(o.Eligibility.Reason))
						optStr(e, "message", o.Eligibility.Text)
						if o.Combo != nil {
							e.Field("combo", func(e *jx.Encoder) { encodeComboMatch(e, o.Combo) })
						}
					})
				}
			})
		})
	})
}

func encodeDetection(e *jx.Encoder, det *promotion.Detection) {
	if det == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		str(e, "comboCode", det.ComboCode)
		str(e, "name", det.Name)
		integer(e, "repetitions", det.Repetitions)
		e.Field("matchingItems", func(e *jx.Encoder) { encodeLines(e, det.MatchingItems) })
		money(e, "originalPrice", det.OriginalPrice)
		money(e, "finalPrice", det.FinalPrice)
		e.Field("consumed", func(e *jx.Encoder) { encodeLines(e, det.Consumed) })
		money(e, "comboPrice", det.ComboPrice)
	})
}

func encodeReceipt(e *jx.Encoder, r *checkout.Receipt) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", r.ID)
		e.Field("lines", func(e *jx.Encoder) { encodeLines(e, r.Lines) })
		optStr(e, "customerId", r.CustomerID)
		optStr(e, "promotionCode", r.PromotionCode)
		money(e, "subtotal", r.Subtotal)
		money(e, "discount", r.Discount)
		integer(e, "pointsRedeemed", r.PointsRedeemed)
		money(e, "pointsValue", r.PointsValue)
		money(e, "total", r.Total)
		str(e, "createdAt", r.CreatedAt.UTC().Format(time.RFC3339))
	})
}
