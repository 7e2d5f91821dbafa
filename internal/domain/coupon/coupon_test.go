package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestRegistry_Resolve(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		name     string
		code     string
		wantOK   bool
		wantCode string
		wantType DiscountType
	}{
		{name: "exact code", code: "PROMO10", wantOK: true, wantCode: "PROMO10", wantType: DiscountPercent},
		{name: "lower case", code: "promo10", wantOK: true, wantCode: "PROMO10", wantType: DiscountPercent},
		{name: "surrounding whitespace", code: "  blackfriday\t", wantOK: true, wantCode: "BLACKFRIDAY", wantType: DiscountPercent},
		{name: "fixed coupon", code: "PrimeiraCompra", wantOK: true, wantCode: "PRIMEIRACOMPRA", wantType: DiscountFixed},
		{name: "unknown", code: "BOGUS", wantOK: false},
		{name: "empty", code: "", wantOK: false},
		{name: "prefix is not a match", code: "PROMO", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := reg.Resolve(tt.code)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantCode, rule.Code)
			assert.Equal(t, tt.wantType, rule.Type)
		})
	}
}

func TestRegistry_NilResolvesNothing(t *testing.T) {
	var reg *Registry
	_, ok := reg.Resolve("PROMO10")
	assert.False(t, ok)
}

func TestRule_Discount(t *testing.T) {
	tests := []struct {
		name     string
		rule     Rule
		subtotal decimal.Decimal
		want     decimal.Decimal
	}{
		{
			name:     "percent 10 of 7.50",
			rule:     Rule{Type: DiscountPercent, Value: d("10")},
			subtotal: d("7.50"),
			want:     d("0.75"),
		},
		{
			name:     "percent rounds to cents",
			rule:     Rule{Type: DiscountPercent, Value: d("20")},
			subtotal: d("3.33"),
			want:     d("0.67"),
		},
		{
			name:     "fixed below subtotal",
			rule:     Rule{Type: DiscountFixed, Value: d("5")},
			subtotal: d("12.40"),
			want:     d("5"),
		},
		{
			name:     "fixed capped at subtotal",
			rule:     Rule{Type: DiscountFixed, Value: d("5")},
			subtotal: d("3.20"),
			want:     d("3.20"),
		},
		{
			name:     "empty subtotal",
			rule:     Rule{Type: DiscountPercent, Value: d("10")},
			subtotal: decimal.Zero,
			want:     decimal.Zero,
		},
		{
			name:     "unknown type",
			rule:     Rule{Type: "bogus", Value: d("10")},
			subtotal: d("100"),
			want:     decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rule.Discount(tt.subtotal)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestRule_DiscountIsIdempotent(t *testing.T) {
	rule, ok := DefaultRegistry().Resolve("PROMO10")
	require.True(t, ok)

	first := rule.Discount(d("42.00"))
	second := rule.Discount(d("42.00"))
	assert.True(t, first.Equal(second))
}
