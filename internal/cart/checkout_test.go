package cart

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillCart(t *testing.T, e *Engine, cartID string, items map[int64]int, order ...int64) {
	t.Helper()
	for _, id := range order {
		_, err := e.AddItem(context.Background(), cartID, id, items[id])
		require.NoError(t, err)
	}
}

func TestCheckout_Success(t *testing.T) {
	oracle := newFakeOracle(
		newTestProduct(1, "Arroz", "10.00", 5),
		newTestProduct(2, "Feijão", "5.00", 5),
	)
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 2, 2: 1}, 1, 2)
	_, err := e.ApplyCoupon(ctx, "c1", "PROMO10")
	require.NoError(t, err)
	_, err = e.SetAddress(ctx, "c1", Address{PostalCode: "1", Street: "Rua B", City: "Recife", State: "PE"})
	require.NoError(t, err)

	r, err := e.Checkout(ctx, Customer(9), "c1", "pix")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.OrderID)
	assert.True(t, dec("25.00").Equal(r.Subtotal))
	assert.True(t, dec("2.50").Equal(r.Discount))
	assert.True(t, dec("22.50").Equal(r.Total))

	require.Len(t, oracle.lines, 2)
	assert.Equal(t, int64(1), oracle.lines[0].ProductID)
	assert.Equal(t, int64(2), oracle.lines[1].ProductID)
	assert.Equal(t, 3, oracle.products[1].Stock)
	assert.Equal(t, 4, oracle.products[2].Stock)

	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)
	assert.Empty(t, v.AppliedCoupon)
	assert.Nil(t, v.Address)
}

func TestCheckout_EmptyCart(t *testing.T) {
	oracle := newFakeOracle()
	e, _ := newTestEngine(t, oracle)

	_, err := e.Checkout(context.Background(), Customer(1), "c1", "pix")
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, oracle.remoteCalls())
}

func TestCheckout_Unauthenticated(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Arroz", "10.00", 5))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 1}, 1)
	before := oracle.remoteCalls()

	for _, sess := range []Session{Anonymous{}, Customer(0)} {
		_, err := e.Checkout(ctx, sess, "c1", "pix")
		require.ErrorIs(t, err, ErrUnauthenticated)
	}
	assert.Equal(t, before, oracle.remoteCalls())
	assert.Empty(t, oracle.orders)
}

func TestCheckout_PaymentMethodRequired(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Arroz", "10.00", 5))
	e, _ := newTestEngine(t, oracle)

	fillCart(t, e, "c1", map[int64]int{1: 1}, 1)
	_, err := e.Checkout(context.Background(), Customer(1), "c1", " ")
	require.ErrorIs(t, err, ErrPaymentRequired)
}

func TestCheckout_InsufficientStockWritesNothing(t *testing.T) {
	oracle := newFakeOracle(
		newTestProduct(1, "Arroz", "10.00", 5),
		newTestProduct(2, "Café", "15.00", 2),
	)
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 1, 2: 2}, 1, 2)
	before, err := e.View(ctx, "c1")
	require.NoError(t, err)

	oracle.setStock(2, 0)

	_, err = e.Checkout(ctx, Customer(1), "c1", "pix")
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Café", stockErr.ProductName)
	assert.Equal(t, 0, stockErr.Available)

	assert.Empty(t, oracle.orders)
	assert.Empty(t, oracle.lines)

	after, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCheckout_MissingProductCountsAsNoStock(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Arroz", "10.00", 5))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 1}, 1)
	oracle.mu.Lock()
	delete(oracle.products, 1)
	oracle.mu.Unlock()

	_, err := e.Checkout(ctx, Customer(1), "c1", "pix")
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Arroz", stockErr.ProductName)
}

func TestCheckout_CreateOrderFails(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Arroz", "10.00", 5))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 1}, 1)
	oracle.createErr = errors.New("502 bad gateway")

	_, err := e.Checkout(ctx, Customer(1), "c1", "pix")
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "create order", remoteErr.Op)

	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, v.Lines, 1)
}

func TestCheckout_PartialFailureAndRetry(t *testing.T) {
	oracle := newFakeOracle(
		newTestProduct(1, "Arroz", "10.00", 5),
		newTestProduct(2, "Feijão", "5.00", 5),
		newTestProduct(3, "Óleo", "7.00", 5),
	)
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 1, 2: 2, 3: 1}, 1, 2, 3)
	oracle.failLineAt = 2

	_, err := e.Checkout(ctx, Customer(4), "c1", "pix")
	var partial *PartialCheckoutError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(1), partial.OrderID)
	assert.Equal(t, 1, partial.Written)
	assert.Equal(t, int64(2), partial.ProductID)
	var remoteErr *RemoteError
	assert.ErrorAs(t, err, &remoteErr)

	// Only the prefix before the failing line reached the server.
	require.Len(t, oracle.lines, 1)
	assert.Equal(t, int64(1), oracle.lines[0].ProductID)
	assert.Equal(t, 2, oracle.lineCalls, "no line after the failing one is submitted")

	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, v.Lines, 3)

	oracle.failLineAt = 0
	r, err := e.Checkout(ctx, Customer(4), "c1", "pix")
	require.NoError(t, err)
	assert.Equal(t, partial.OrderID, r.OrderID)
	assert.Len(t, oracle.orders, 1)
	require.Len(t, oracle.lines, 3)
	assert.Equal(t, 4, oracle.products[1].Stock, "line written before the failure must not be decremented twice")
}

func TestCheckout_RetryIgnoresStockTakenByHeldLines(t *testing.T) {
	oracle := newFakeOracle(
		newTestProduct(1, "Arroz", "10.00", 2),
		newTestProduct(2, "Feijão", "5.00", 5),
	)
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 2, 2: 1}, 1, 2)
	oracle.failLineAt = 2

	_, err := e.Checkout(ctx, Customer(4), "c1", "pix")
	var partial *PartialCheckoutError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 0, oracle.products[1].Stock, "first line took all remaining stock")

	oracle.failLineAt = 0
	r, err := e.Checkout(ctx, Customer(4), "c1", "pix")
	require.NoError(t, err)
	assert.Equal(t, partial.OrderID, r.OrderID)
	assert.Len(t, oracle.orders, 1)
	require.Len(t, oracle.lines, 2)
	assert.Equal(t, 0, oracle.products[1].Stock)
	assert.Equal(t, 4, oracle.products[2].Stock)
	assert.Equal(t, 3, oracle.lineCalls, "held line is not written again")
}

func TestCheckout_RetryStillChecksUnwrittenLines(t *testing.T) {
	oracle := newFakeOracle(
		newTestProduct(1, "Arroz", "10.00", 2),
		newTestProduct(2, "Feijão", "5.00", 5),
	)
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 2, 2: 3}, 1, 2)
	oracle.failLineAt = 2

	_, err := e.Checkout(ctx, Customer(4), "c1", "pix")
	require.Error(t, err)

	oracle.failLineAt = 0
	oracle.setStock(2, 1)
	_, err = e.Checkout(ctx, Customer(4), "c1", "pix")
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(2), stockErr.ProductID)
	assert.Equal(t, 2, oracle.lineCalls, "nothing written after the failed gate")
}

func TestCheckout_RetryOrderLookupFails(t *testing.T) {
	oracle := newFakeOracle(
		newTestProduct(1, "Arroz", "10.00", 5),
		newTestProduct(2, "Feijão", "5.00", 5),
	)
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 1, 2: 1}, 1, 2)
	oracle.failLineAt = 2
	_, err := e.Checkout(ctx, Customer(4), "c1", "pix")
	require.Error(t, err)

	oracle.failLineAt = 0
	oracle.getOrderErr = errors.New("i/o timeout")
	_, err = e.Checkout(ctx, Customer(4), "c1", "pix")
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "get order", remoteErr.Op)
	assert.Equal(t, 2, oracle.lineCalls)
}

func TestCheckout_FreshCheckoutSkipsOrderLookup(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Arroz", "10.00", 5))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 1}, 1)
	_, err := e.Checkout(ctx, Customer(4), "c1", "pix")
	require.NoError(t, err)
	assert.Zero(t, oracle.orderGets)
}

func TestCheckout_MutationAfterFailureStartsNewOrder(t *testing.T) {
	oracle := newFakeOracle(
		newTestProduct(1, "Arroz", "10.00", 5),
		newTestProduct(2, "Feijão", "5.00", 5),
	)
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 1, 2: 1}, 1, 2)
	oracle.failLineAt = 2

	_, err := e.Checkout(ctx, Customer(4), "c1", "pix")
	require.Error(t, err)

	_, err = e.Remove(ctx, "c1", 2)
	require.NoError(t, err)

	oracle.failLineAt = 0
	r, err := e.Checkout(ctx, Customer(4), "c1", "pix")
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.OrderID)
	assert.Len(t, oracle.orders, 2)
}

func TestCheckout_StockLoopTransportError(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Arroz", "10.00", 5))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	fillCart(t, e, "c1", map[int64]int{1: 1}, 1)
	oracle.getErr = errors.New("i/o timeout")

	_, err := e.Checkout(ctx, Customer(1), "c1", "pix")
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Empty(t, oracle.orders)
}

func TestCheckoutOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrEmptyCart, "empty"},
		{ErrUnauthenticated, "unauthenticated"},
		{&InsufficientStockError{}, "insufficient_stock"},
		{&PartialCheckoutError{Err: &InsufficientStockError{}}, "partial"},
		{&RemoteError{Op: "x", Err: errors.New("y")}, "remote_error"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, checkoutOutcome(tt.err))
	}
}
