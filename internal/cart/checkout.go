package cart

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Receipt is the outcome of a successful checkout.
type Receipt struct {
	OrderID  int64           `json:"order_id"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Checkout turns the cart into an order.
//
// Nothing is written remotely unless the cart is non-empty, the session
// carries a customer and every line fits the live stock. The order header is
// created with the cart's checkout key, then lines are written one by one in
// cart order. On success the cart is cleared. On a line failure the cart is
// kept with its key and order id so that a retry reuses the same order. Lines
// the order already holds have taken their stock and are left out of the stock
// check and not written again.
//
// Identity and payment are checked before stock, so an anonymous cart that is
// also short on stock reports the missing customer first.
func (e *Engine) Checkout(ctx context.Context, sess Session, cartID, paymentMethod string) (_ *Receipt, rerr error) {
	ctx, span := e.tracer.Start(ctx, "cart.Checkout",
		trace.WithAttributes(attribute.String("cart.id", cartID)),
	)
	defer func() {
		outcome := "success"
		if rerr != nil {
			outcome = checkoutOutcome(rerr)
			span.RecordError(rerr)
			span.SetStatus(codes.Error, outcome)
		}
		e.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	unlock := e.locks.Lock(cartID)
	defer unlock()

	c, err := e.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Empty() {
		return nil, ErrEmptyCart
	}
	customerID, ok := sess.CustomerID()
	if !ok {
		return nil, ErrUnauthenticated
	}
	paymentMethod = strings.TrimSpace(paymentMethod)
	if paymentMethod == "" {
		return nil, ErrPaymentRequired
	}

	held, err := e.heldLines(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := e.verifyStock(ctx, c, held); err != nil {
		return nil, err
	}

	subtotal := c.Subtotal().Round(2)
	discount, total := pricing(c, e.coupons)

	if c.CheckoutKey == "" {
		c.CheckoutKey = uuid.NewString()
		if err := e.save(ctx, c); err != nil {
			return nil, err
		}
	}

	lg := zctx.From(ctx).With(
		zap.String("cart_id", cartID),
		zap.Int64("customer_id", customerID),
		zap.String("checkout_key", c.CheckoutKey),
	)

	ref, err := e.oracle.CreateOrder(ctx, OrderRequest{
		CustomerID:     customerID,
		TotalAmount:    total,
		PaymentMethod:  paymentMethod,
		IdempotencyKey: c.CheckoutKey,
	})
	if err != nil {
		return nil, remote("create order", err)
	}
	span.SetAttributes(attribute.Int64("order.id", ref.ID))
	if ref.Replayed {
		lg.Info("Resuming checkout", zap.Int64("order_id", ref.ID), zap.Int("held_lines", len(held)))
	}
	if c.CheckoutOrder != ref.ID {
		c.CheckoutOrder = ref.ID
		if err := e.save(ctx, c); err != nil {
			// The key alone still replays the order on retry.
			lg.Warn("Remember checkout order", zap.Int64("order_id", ref.ID), zap.Error(err))
		}
	}

	for i, l := range c.Lines {
		if held[l.ProductID] {
			continue
		}
		err := e.oracle.CreateOrderLine(ctx, OrderLineRequest{
			OrderID:   ref.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
		if err != nil {
			lg.Warn("Order line failed",
				zap.Int64("order_id", ref.ID),
				zap.Int64("product_id", l.ProductID),
				zap.Int("written", i),
				zap.Error(err),
			)
			return nil, &PartialCheckoutError{
				OrderID:   ref.ID,
				Written:   i,
				ProductID: l.ProductID,
				Err:       remote("create order line", err),
			}
		}
	}

	if err := e.store.Delete(ctx, cartID); err != nil {
		// The order is placed. A retry replays it through the checkout key.
		lg.Error("Clear cart after checkout", zap.Error(err))
	}
	lg.Info("Checkout complete",
		zap.Int64("order_id", ref.ID),
		zap.Stringer("total", total),
	)

	return &Receipt{
		OrderID:  ref.ID,
		Subtotal: subtotal,
		Discount: discount,
		Total:    total,
	}, nil
}

// heldLines returns the products the cart's pending order already holds. A
// fresh checkout, or an order the server no longer knows, holds nothing.
func (e *Engine) heldLines(ctx context.Context, c *Cart) (map[int64]bool, error) {
	if c.CheckoutKey == "" || c.CheckoutOrder == 0 {
		return nil, nil
	}
	o, err := e.oracle.GetOrder(ctx, c.CheckoutOrder)
	if errors.Is(err, ErrOrderNotFound) {
		c.CheckoutOrder = 0
		return nil, nil
	}
	if err != nil {
		return nil, remote("get order", err)
	}
	held := make(map[int64]bool, len(o.Lines))
	for _, l := range o.Lines {
		held[l.ProductID] = true
	}
	return held, nil
}

// verifyStock re-reads every line not in held from the oracle. A product that
// no longer exists counts as zero stock.
func (e *Engine) verifyStock(ctx context.Context, c *Cart, held map[int64]bool) error {
	for _, l := range c.Lines {
		if held[l.ProductID] {
			continue
		}
		available := 0
		name := l.Name
		p, err := e.oracle.GetProduct(ctx, l.ProductID)
		switch {
		case errors.Is(err, ErrProductNotFound):
		case err != nil:
			return remote("get product", err)
		default:
			available = p.Stock
			name = p.Name
		}
		if l.Quantity > available {
			return &InsufficientStockError{
				ProductID:   l.ProductID,
				ProductName: name,
				Requested:   l.Quantity,
				Available:   available,
			}
		}
	}
	return nil
}

func checkoutOutcome(err error) string {
	var (
		stockErr   *InsufficientStockError
		partialErr *PartialCheckoutError
		remoteErr  *RemoteError
	)
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.As(err, &partialErr):
		return "partial"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.As(err, &remoteErr):
		return "remote_error"
	default:
		return "error"
	}
}
