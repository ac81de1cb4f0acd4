package handler

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-promotions/internal/domain/checkout"
)

func decodeQuoteRequest(d *jx.Decoder) (checkout.QuoteRequest, error) {
	var req checkout.QuoteRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "items":
			req.Items, err = decodeItems(d)
		case "customerId":
			req.CustomerID, err = decodeOptStr(d)
		case "promotionCode":
			req.PromotionCode, err = decodeOptStr(d)
		case "points":
			req.Points, err = decodeOptInt(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
	return req, err
}

func decodeDetectRequest(d *jx.Decoder) (checkout.DetectRequest, error) {
	var req checkout.DetectRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "items":
			req.Items, err = decodeItems(d)
		case "productId":
			req.ProductID, err = d.Str()
		case "dismissed":
			err = d.Arr(func(d *jx.Decoder) error {
				code, err := d.Str()
				if err != nil {
					return err
				}
				req.Dismissed = append(req.Dismissed, code)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
	if err != nil {
		return req, err
	}
	if req.ProductID == "" {
		return req, errors.New("productId is required")
	}
	return req, nil
}

func decodeItems(d *jx.Decoder) ([]checkout.ItemRequest, error) {
	var items []checkout.ItemRequest
	err := d.Arr(func(d *jx.Decoder) error {
		var item checkout.ItemRequest
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "productId":
				item.ProductID, err = d.Str()
			case "quantity":
				item.Quantity, err = d.Int()
			case "surcharge":
				item.Surcharge, err = decodeDecimal(d)
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "decode %q", key)
			}
			return nil
		}); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

// decodeDecimal accepts a JSON number or a numeric string; null is zero.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeOptInt(d *jx.Decoder) (int, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	return d.Int()
}
