// Package coupon resolves promotional codes into discount rules.
//
// The registry is static: there is no expiry, usage limit or per-customer
// restriction. Discounts are computed against the subtotal at the moment of
// use, so a percentage coupon tracks later cart changes.
package coupon

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountFixed subtracts a fixed monetary amount, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
	// DiscountPercent subtracts a percentage of the subtotal.
	DiscountPercent DiscountType = "percent"
)

// Rule is the discount a code resolves to.
type Rule struct {
	Code  string
	Type  DiscountType
	Value decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Discount returns the amount the rule takes off subtotal, rounded to cents.
// The result is never negative and never exceeds subtotal.
func (r Rule) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch r.Type {
	case DiscountPercent:
		amount = subtotal.Mul(r.Value).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(r.Value, subtotal)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

// Registry is a fixed set of codes. The zero value resolves nothing.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry builds a registry from rules, normalizing each code.
func NewRegistry(rules ...Rule) *Registry {
	m := make(map[string]Rule, len(rules))
	for _, r := range rules {
		r.Code = Normalize(r.Code)
		m[r.Code] = r
	}
	return &Registry{rules: m}
}

// DefaultRegistry returns the storefront's preset promotions.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Rule{Code: "PRIMEIRACOMPRA", Type: DiscountFixed, Value: decimal.RequireFromString("5.00")},
		Rule{Code: "PROMO10", Type: DiscountPercent, Value: decimal.NewFromInt(10)},
		Rule{Code: "BLACKFRIDAY", Type: DiscountPercent, Value: decimal.NewFromInt(20)},
	)
}

// Resolve looks code up after trimming whitespace and upper-casing it.
func (r *Registry) Resolve(code string) (Rule, bool) {
	if r == nil {
		return Rule{}, false
	}
	rule, ok := r.rules[Normalize(code)]
	return rule, ok
}

// Normalize returns the canonical registry form of a code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
