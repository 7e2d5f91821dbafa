package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// recordVersion tags persisted cart records. Records carrying any other
// version are discarded on load.
const recordVersion = 1

// Records is the serialized form of a cart: one entry for lines, address and
// checkout key, one entry for the applied coupon.
type Records struct {
	Items  []byte
	Coupon []byte
}

// Empty reports whether neither entry is present.
func (r Records) Empty() bool {
	return len(r.Items) == 0 && len(r.Coupon) == 0
}

// errVersionMismatch marks a record written under a different schema.
var errVersionMismatch = errors.New("record version mismatch")

func encodeRecords(c *Cart) Records {
	var items jx.Encoder
	items.ObjStart()
	items.FieldStart("v")
	items.Int(recordVersion)
	items.FieldStart("lines")
	items.ArrStart()
	for _, l := range c.Lines {
		encodeLine(&items, l)
	}
	items.ArrEnd()
	if c.Address != nil {
		items.FieldStart("address")
		encodeAddress(&items, c.Address)
	}
	if c.CheckoutKey != "" {
		items.FieldStart("checkout_key")
		items.Str(c.CheckoutKey)
	}
	if c.CheckoutOrder != 0 {
		items.FieldStart("checkout_order")
		items.Int64(c.CheckoutOrder)
	}
	items.ObjEnd()

	r := Records{Items: items.Bytes()}
	if c.CouponCode != "" {
		var cp jx.Encoder
		cp.ObjStart()
		cp.FieldStart("v")
		cp.Int(recordVersion)
		cp.FieldStart("code")
		cp.Str(c.CouponCode)
		cp.ObjEnd()
		r.Coupon = cp.Bytes()
	}
	return r
}

func encodeLine(e *jx.Encoder, l Line) {
	e.ObjStart()
	e.FieldStart("product_id")
	e.Int64(l.ProductID)
	e.FieldStart("name")
	e.Str(l.Name)
	e.FieldStart("unit_price")
	e.Str(l.UnitPrice.String())
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("stock")
	e.Int(l.StockSnapshot)
	if l.ImageRef != "" {
		e.FieldStart("image_ref")
		e.Str(l.ImageRef)
	}
	if l.Description != "" {
		e.FieldStart("description")
		e.Str(l.Description)
	}
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a *Address) {
	e.ObjStart()
	for _, f := range []struct{ name, value string }{
		{"postal_code", a.PostalCode},
		{"street", a.Street},
		{"number", a.Number},
		{"district", a.District},
		{"city", a.City},
		{"state", a.State},
		{"complement", a.Complement},
	} {
		e.FieldStart(f.name)
		e.Str(f.value)
	}
	e.ObjEnd()
}

// decodeRecords rebuilds the cart id from r. Each entry is checked
// independently: a stale coupon entry does not invalidate the lines.
func decodeRecords(id string, r Records) (*Cart, error) {
	var (
		c      = &Cart{ID: id}
		result error
	)
	if len(r.Items) > 0 {
		if err := decodeItems(r.Items, c); err != nil {
			c.Lines, c.Address, c.CheckoutKey, c.CheckoutOrder = nil, nil, "", 0
			result = errors.Wrap(err, "items")
		}
	}
	if len(r.Coupon) > 0 {
		code, err := decodeCoupon(r.Coupon)
		switch {
		case err != nil && result == nil:
			result = errors.Wrap(err, "coupon")
		case err == nil:
			c.CouponCode = code
		}
	}
	return c, result
}

func decodeItems(data []byte, c *Cart) error {
	version := 0
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "v":
			v, err := d.Int()
			version = v
			return err
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeLine(d)
				if err != nil {
					return err
				}
				c.Lines = append(c.Lines, l)
				return nil
			})
		case "address":
			a, err := decodeAddress(d)
			c.Address = a
			return err
		case "checkout_key":
			s, err := d.Str()
			c.CheckoutKey = s
			return err
		case "checkout_order":
			id, err := d.Int64()
			c.CheckoutOrder = id
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return errors.Wrap(err, "decode")
	}
	if version != recordVersion {
		return errors.Wrapf(errVersionMismatch, "got %d", version)
	}
	return nil
}

func decodeLine(d *jx.Decoder) (Line, error) {
	var l Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			l.ProductID, err = d.Int64()
		case "name":
			l.Name, err = d.Str()
		case "unit_price":
			var s string
			if s, err = d.Str(); err == nil {
				l.UnitPrice, err = decimal.NewFromString(s)
			}
		case "quantity":
			l.Quantity, err = d.Int()
		case "stock":
			l.StockSnapshot, err = d.Int()
		case "image_ref":
			l.ImageRef, err = d.Str()
		case "description":
			l.Description, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && (l.ProductID == 0 || l.Quantity < 1) {
		err = errors.New("malformed line")
	}
	return l, err
}

func decodeAddress(d *jx.Decoder) (*Address, error) {
	a := &Address{}
	fields := map[string]*string{
		"postal_code": &a.PostalCode,
		"street":      &a.Street,
		"number":      &a.Number,
		"district":    &a.District,
		"city":        &a.City,
		"state":       &a.State,
		"complement":  &a.Complement,
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		dst, ok := fields[key]
		if !ok {
			return d.Skip()
		}
		s, err := d.Str()
		*dst = s
		return err
	})
	return a, err
}

func decodeCoupon(data []byte) (string, error) {
	var (
		version int
		code    string
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "v":
			version, err = d.Int()
		case "code":
			code, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "decode")
	}
	if version != recordVersion {
		return "", errors.Wrapf(errVersionMismatch, "got %d", version)
	}
	return code, nil
}
