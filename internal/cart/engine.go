package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/mercado/internal/domain/coupon"
)

const instrumentationName = "github.com/xenking/mercado/internal/cart"

// Engine applies cart operations. All operations on one cart id are
// serialized: the load, oracle read, mutation and save of one call never
// interleave with another call for the same cart inside this process.
type Engine struct {
	oracle  StockOracle
	store   Store
	coupons *coupon.Registry
	locks   *keyedMutex

	tracer    trace.Tracer
	checkouts metric.Int64Counter
	discarded metric.Int64Counter
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMeterProvider sets the meter provider for engine metrics.
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = p }
}

// WithTracerProvider sets the tracer provider for checkout spans.
func WithTracerProvider(p trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = p }
}

// NewEngine creates an Engine.
func NewEngine(oracle StockOracle, store Store, coupons *coupon.Registry, opts ...Option) (*Engine, error) {
	o := options{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	checkouts, err := meter.Int64Counter("cart.checkouts",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkouts counter")
	}
	discarded, err := meter.Int64Counter("cart.records.discarded",
		metric.WithDescription("Persisted cart records dropped on load"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "discarded counter")
	}

	return &Engine{
		oracle:    oracle,
		store:     store,
		coupons:   coupons,
		locks:     newKeyedMutex(),
		tracer:    o.tracerProvider.Tracer(instrumentationName),
		checkouts: checkouts,
		discarded: discarded,
	}, nil
}

// NewCart allocates a cart id and persists an empty cart under it.
func (e *Engine) NewCart(ctx context.Context) (*View, error) {
	c := &Cart{ID: uuid.NewString()}
	if err := e.save(ctx, c); err != nil {
		return nil, err
	}
	return newView(c, e.coupons), nil
}

// View returns the current cart with derived pricing.
func (e *Engine) View(ctx context.Context, cartID string) (*View, error) {
	unlock := e.locks.Lock(cartID)
	defer unlock()

	c, err := e.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return newView(c, e.coupons), nil
}

// AddItem adds qty units of a product, clamped to the live stock. Adding to
// an existing line keeps its unit price. When the clamp leaves nothing to
// add the cart is left unchanged and *InsufficientStockError is returned.
func (e *Engine) AddItem(ctx context.Context, cartID string, productID int64, qty int) (*View, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	return e.mutate(ctx, cartID, func(ctx context.Context, c *Cart) (bool, error) {
		p, err := e.oracle.GetProduct(ctx, productID)
		if err != nil {
			return false, remote("get product", err)
		}

		if i, ok := c.line(productID); ok {
			l := &c.Lines[i]
			next := min(l.Quantity+qty, p.Stock)
			if next < 1 {
				return false, &InsufficientStockError{
					ProductID: productID, ProductName: l.Name, Requested: l.Quantity + qty, Available: p.Stock,
				}
			}
			l.Quantity = next
			l.StockSnapshot = p.Stock
			return true, nil
		}

		next := min(qty, p.Stock)
		if next < 1 {
			return false, &InsufficientStockError{
				ProductID: productID, ProductName: p.Name, Requested: qty, Available: p.Stock,
			}
		}
		c.Lines = append(c.Lines, Line{
			ProductID:     p.ID,
			Name:          p.Name,
			UnitPrice:     p.Price,
			Quantity:      next,
			StockSnapshot: p.Stock,
			ImageRef:      p.ImageRef,
			Description:   p.Description,
		})
		return true, nil
	})
}

// Increase raises a line by one unit after re-reading live stock. It reports
// false without error when the line is at the stock cap, the product no
// longer exists or the line is absent.
func (e *Engine) Increase(ctx context.Context, cartID string, productID int64) (bool, error) {
	increased := false
	_, err := e.mutate(ctx, cartID, func(ctx context.Context, c *Cart) (bool, error) {
		i, ok := c.line(productID)
		if !ok {
			return false, nil
		}
		p, err := e.oracle.GetProduct(ctx, productID)
		if errors.Is(err, ErrProductNotFound) {
			return false, nil
		}
		if err != nil {
			return false, remote("get product", err)
		}

		l := &c.Lines[i]
		if l.Quantity+1 > p.Stock {
			return false, nil
		}
		l.Quantity++
		l.StockSnapshot = p.Stock
		increased = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return increased, nil
}

// Decrease lowers a line by one unit. A line never drops below one unit;
// removal is a separate operation.
func (e *Engine) Decrease(ctx context.Context, cartID string, productID int64) (*View, error) {
	return e.mutate(ctx, cartID, func(_ context.Context, c *Cart) (bool, error) {
		i, ok := c.line(productID)
		if !ok || c.Lines[i].Quantity <= 1 {
			return false, nil
		}
		c.Lines[i].Quantity--
		return true, nil
	})
}

// Remove deletes a line.
func (e *Engine) Remove(ctx context.Context, cartID string, productID int64) (*View, error) {
	return e.mutate(ctx, cartID, func(_ context.Context, c *Cart) (bool, error) {
		return c.remove(productID), nil
	})
}

// ApplyCoupon stores a coupon code and returns the discount it yields on the
// current subtotal. Unknown codes leave the cart untouched.
func (e *Engine) ApplyCoupon(ctx context.Context, cartID, code string) (decimal.Decimal, error) {
	rule, ok := e.coupons.Resolve(code)
	if !ok {
		return decimal.Zero, ErrUnknownCoupon
	}
	discount := decimal.Zero
	_, err := e.mutate(ctx, cartID, func(_ context.Context, c *Cart) (bool, error) {
		discount = rule.Discount(c.Subtotal())
		if c.CouponCode == rule.Code {
			return false, nil
		}
		c.CouponCode = rule.Code
		return true, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return discount, nil
}

// SetAddress stores the shipping address.
func (e *Engine) SetAddress(ctx context.Context, cartID string, addr Address) (*View, error) {
	if strings.TrimSpace(addr.PostalCode) == "" ||
		strings.TrimSpace(addr.Street) == "" ||
		strings.TrimSpace(addr.City) == "" {
		return nil, ErrInvalidAddress
	}
	return e.mutate(ctx, cartID, func(_ context.Context, c *Cart) (bool, error) {
		c.Address = &addr
		return true, nil
	})
}

// Clear empties lines, coupon and address.
func (e *Engine) Clear(ctx context.Context, cartID string) (*View, error) {
	unlock := e.locks.Lock(cartID)
	defer unlock()

	if err := e.store.Delete(ctx, cartID); err != nil {
		return nil, errors.Wrap(err, "delete cart")
	}
	return newView(&Cart{ID: cartID}, e.coupons), nil
}

// mutate runs fn under the cart lock and saves the cart when fn reports a
// change. Changes to lines or coupon drop the pending checkout key.
func (e *Engine) mutate(
	ctx context.Context,
	cartID string,
	fn func(ctx context.Context, c *Cart) (changed bool, err error),
) (*View, error) {
	unlock := e.locks.Lock(cartID)
	defer unlock()

	c, err := e.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	before := pricingKey(c)
	changed, err := fn(ctx, c)
	if err != nil {
		return nil, err
	}
	if changed {
		if pricingKey(c) != before {
			c.CheckoutKey = ""
			c.CheckoutOrder = 0
		}
		if err := e.save(ctx, c); err != nil {
			return nil, err
		}
	}
	return newView(c, e.coupons), nil
}

// pricingKey summarizes what an order is built from.
func pricingKey(c *Cart) string {
	var b strings.Builder
	b.WriteString(c.CouponCode)
	for _, l := range c.Lines {
		fmt.Fprintf(&b, "|%d:%d:%s", l.ProductID, l.Quantity, l.UnitPrice)
	}
	return b.String()
}

func (e *Engine) load(ctx context.Context, cartID string) (*Cart, error) {
	r, err := e.store.Load(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	c, err := decodeRecords(cartID, r)
	if err != nil {
		e.discarded.Add(ctx, 1)
		zctx.From(ctx).Warn("Discarding persisted cart record",
			zap.String("cart_id", cartID),
			zap.Error(err),
		)
	}
	return c, nil
}

func (e *Engine) save(ctx context.Context, c *Cart) error {
	if err := e.store.Save(ctx, c.ID, encodeRecords(c)); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}
