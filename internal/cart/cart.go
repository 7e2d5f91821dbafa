// Package cart implements the shopping cart aggregate and the checkout
// sequence that turns a cart into an order on the remote order service.
package cart

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/mercado/internal/domain/coupon"
)

// Line is one product selected for purchase.
//
// UnitPrice is captured when the product is first added. StockSnapshot is the
// last stock value the oracle reported and bounds Quantity whenever the line
// is mutated.
type Line struct {
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
	StockSnapshot int             `json:"stock_snapshot"`
	ImageRef      string          `json:"image_ref,omitempty"`
	Description   string          `json:"description,omitempty"`
}

// Amount is UnitPrice × Quantity.
func (l Line) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Address is the shipping destination attached to a cart.
type Address struct {
	PostalCode string `json:"postal_code"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	District   string `json:"district,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	Complement string `json:"complement,omitempty"`
}

// Cart is the aggregate persisted per cart id. Lines keep insertion order.
type Cart struct {
	ID         string
	Lines      []Line
	CouponCode string
	Address    *Address
	// CheckoutKey is the idempotency key of a checkout in progress. It is
	// kept across failed attempts and dropped whenever lines or coupon change.
	CheckoutKey string
	// CheckoutOrder is the order the key created, once the server confirmed
	// it. Zero while unknown.
	CheckoutOrder int64
}

// Subtotal is the sum of line amounts.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Amount())
	}
	return total
}

// TotalItems is the sum of line quantities.
func (c *Cart) TotalItems() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) line(productID int64) (int, bool) {
	i := slices.IndexFunc(c.Lines, func(l Line) bool { return l.ProductID == productID })
	return i, i >= 0
}

func (c *Cart) remove(productID int64) bool {
	i, ok := c.line(productID)
	if !ok {
		return false
	}
	c.Lines = slices.Delete(c.Lines, i, i+1)
	return true
}

// View is the read-only projection of a cart with derived pricing.
type View struct {
	ID            string          `json:"id"`
	Lines         []Line          `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalItems    int             `json:"total_items"`
	AppliedCoupon string          `json:"applied_coupon,omitempty"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	Address       *Address        `json:"address,omitempty"`
}

// pricing returns the live discount and total for c. A coupon no longer in
// the registry contributes nothing.
func pricing(c *Cart, coupons *coupon.Registry) (discount, total decimal.Decimal) {
	subtotal := c.Subtotal()
	discount = decimal.Zero
	if c.CouponCode != "" {
		if rule, ok := coupons.Resolve(c.CouponCode); ok {
			discount = rule.Discount(subtotal)
		}
	}
	total = subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return discount, total.Round(2)
}

func newView(c *Cart, coupons *coupon.Registry) *View {
	discount, total := pricing(c, coupons)
	lines := slices.Clone(c.Lines)
	if lines == nil {
		lines = []Line{}
	}
	return &View{
		ID:            c.ID,
		Lines:         lines,
		Subtotal:      c.Subtotal().Round(2),
		TotalItems:    c.TotalItems(),
		AppliedCoupon: c.CouponCode,
		Discount:      discount,
		Total:         total,
		Address:       c.Address,
	}
}
