package cart

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/mercado/internal/domain/coupon"
	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/domain/product"
)

// --- Fake oracle ---

type fakeLine struct {
	OrderID   int64
	ProductID int64
	Quantity  int
}

type fakeOracle struct {
	mu       sync.Mutex
	products map[int64]*product.Product
	orders   map[string]int64
	lines    []fakeLine
	nextID   int64

	getErr      error
	createErr   error
	getOrderErr error
	failLineAt  int // 1-based index of the CreateOrderLine call to fail; 0 disables
	lineCalls   int

	gets, creates, orderGets int
}

func newFakeOracle(products ...product.Product) *fakeOracle {
	o := &fakeOracle{
		products: make(map[int64]*product.Product),
		orders:   make(map[string]int64),
	}
	for i := range products {
		o.products[products[i].ID] = &products[i]
	}
	return o
}

func (o *fakeOracle) GetProduct(_ context.Context, id int64) (*product.Product, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gets++
	if o.getErr != nil {
		return nil, o.getErr
	}
	p, ok := o.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (o *fakeOracle) CreateOrder(_ context.Context, req OrderRequest) (*OrderRef, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.creates++
	if o.createErr != nil {
		return nil, o.createErr
	}
	if id, ok := o.orders[req.IdempotencyKey]; ok {
		return &OrderRef{ID: id, Replayed: true}, nil
	}
	o.nextID++
	o.orders[req.IdempotencyKey] = o.nextID
	return &OrderRef{ID: o.nextID}, nil
}

func (o *fakeOracle) CreateOrderLine(_ context.Context, req OrderLineRequest) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lineCalls++
	if o.failLineAt > 0 && o.lineCalls == o.failLineAt {
		return errors.New("connection reset by peer")
	}
	for _, l := range o.lines {
		if l.OrderID == req.OrderID && l.ProductID == req.ProductID {
			return nil
		}
	}
	p := o.products[req.ProductID]
	if p == nil || p.Stock < req.Quantity {
		return &InsufficientStockError{ProductID: req.ProductID, Requested: req.Quantity}
	}
	p.Stock -= req.Quantity
	o.lines = append(o.lines, fakeLine{OrderID: req.OrderID, ProductID: req.ProductID, Quantity: req.Quantity})
	return nil
}

func (o *fakeOracle) GetOrder(_ context.Context, id int64) (*order.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orderGets++
	if o.getOrderErr != nil {
		return nil, o.getOrderErr
	}
	for _, oid := range o.orders {
		if oid != id {
			continue
		}
		out := &order.Order{ID: id, Status: order.StatusPending}
		for _, l := range o.lines {
			if l.OrderID == id {
				out.Lines = append(out.Lines, order.Line{OrderID: id, ProductID: l.ProductID, Quantity: l.Quantity})
			}
		}
		return out, nil
	}
	return nil, ErrOrderNotFound
}

func (o *fakeOracle) setStock(id int64, stock int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.products[id].Stock = stock
}

func (o *fakeOracle) remoteCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gets + o.creates + o.lineCalls
}

// --- Helpers ---

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestProduct(id int64, name, price string, stock int) product.Product {
	return product.Product{ID: id, Name: name, Price: dec(price), Stock: stock}
}

func newTestEngine(t *testing.T, oracle StockOracle) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	e, err := NewEngine(oracle, store, coupon.DefaultRegistry())
	require.NoError(t, err)
	return e, store
}

func assertDerived(t *testing.T, v *View) {
	t.Helper()
	subtotal := decimal.Zero
	items := 0
	for _, l := range v.Lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		items += l.Quantity
		assert.GreaterOrEqual(t, l.Quantity, 1)
	}
	assert.True(t, subtotal.Round(2).Equal(v.Subtotal), "subtotal %s != %s", subtotal, v.Subtotal)
	assert.Equal(t, items, v.TotalItems)
}

// --- Tests ---

func TestAddItem_NewLine(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(7, "Arroz 1kg", "2.50", 5))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	v, err := e.AddItem(ctx, "c1", 7, 3)
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, int64(7), v.Lines[0].ProductID)
	assert.Equal(t, 3, v.Lines[0].Quantity)
	assert.Equal(t, 5, v.Lines[0].StockSnapshot)
	assert.True(t, dec("7.50").Equal(v.Subtotal))
	assert.Equal(t, 3, v.TotalItems)
}

func TestAddItem_ClampsToStock(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Feijão", "8.90", 4))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	v, err := e.AddItem(ctx, "c1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Lines[0].Quantity)

	v, err = e.AddItem(ctx, "c1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Lines[0].Quantity)
}

func TestAddItem_ExistingLineKeepsPriceAndRefreshesSnapshot(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Café", "15.00", 3))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 1)
	require.NoError(t, err)

	oracle.mu.Lock()
	oracle.products[1].Price = dec("18.00")
	oracle.products[1].Stock = 10
	oracle.mu.Unlock()

	v, err := e.AddItem(ctx, "c1", 1, 2)
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, 3, v.Lines[0].Quantity)
	assert.Equal(t, 10, v.Lines[0].StockSnapshot)
	assert.True(t, dec("15.00").Equal(v.Lines[0].UnitPrice))
}

func TestAddItem_ExistingLineClampsDownWhenStockShrank(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Leite", "4.99", 6))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 5)
	require.NoError(t, err)
	oracle.setStock(1, 2)

	v, err := e.AddItem(ctx, "c1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Lines[0].Quantity)
	assert.Equal(t, 2, v.Lines[0].StockSnapshot)
}

func TestAddItem_OutOfStock(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Azeite", "32.00", 0))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 1)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Azeite", stockErr.ProductName)

	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)
}

func TestAddItem_Errors(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Sal", "1.99", 10))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = e.AddItem(ctx, "c1", 99, 1)
	require.ErrorIs(t, err, ErrProductNotFound)

	oracle.getErr = errors.New("dial tcp: connection refused")
	_, err = e.AddItem(ctx, "c1", 1, 1)
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)

	oracle.getErr = nil
	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)
}

func TestIncrease_CapsAtStock(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(7, "Arroz 1kg", "2.50", 5))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 7, 3)
	require.NoError(t, err)

	for range 2 {
		ok, err := e.Increase(ctx, "c1", 7)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := e.Increase(ctx, "c1", 7)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, v.Lines[0].Quantity)
}

func TestIncrease_NoLineOrVanishedProduct(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Pão", "0.80", 10))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	ok, err := e.Increase(ctx, "c1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.AddItem(ctx, "c1", 1, 1)
	require.NoError(t, err)

	oracle.mu.Lock()
	delete(oracle.products, 1)
	oracle.mu.Unlock()

	ok, err = e.Increase(ctx, "c1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Lines[0].Quantity)
}

func TestIncrease_StockDroppedToZero(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Ovos", "12.00", 2))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 2)
	require.NoError(t, err)
	oracle.setStock(1, 0)

	ok, err := e.Increase(ctx, "c1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Lines[0].Quantity)
}

func TestIncrease_TransportError(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Ovos", "12.00", 5))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 1)
	require.NoError(t, err)
	oracle.getErr = errors.New("timeout")

	ok, err := e.Increase(ctx, "c1", 1)
	assert.False(t, ok)
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
}

func TestIncrease_ConcurrentCallsLinearize(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Água", "2.00", 100))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 1)
	require.NoError(t, err)

	const workers = 25
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.Increase(ctx, "c1", 1)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1+workers, v.Lines[0].Quantity)
}

func TestDecrease_FloorsAtOne(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Banana", "0.50", 10))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 2)
	require.NoError(t, err)

	v, err := e.Decrease(ctx, "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Lines[0].Quantity)

	v, err = e.Decrease(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, 1, v.Lines[0].Quantity)

	v, err = e.Decrease(ctx, "c1", 42)
	require.NoError(t, err)
	assert.Len(t, v.Lines, 1)
}

func TestRemove(t *testing.T) {
	oracle := newFakeOracle(
		newTestProduct(1, "Banana", "0.50", 10),
		newTestProduct(2, "Maçã", "1.20", 10),
	)
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 2)
	require.NoError(t, err)
	_, err = e.AddItem(ctx, "c1", 2, 1)
	require.NoError(t, err)

	v, err := e.Remove(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, int64(2), v.Lines[0].ProductID)
	assert.True(t, dec("1.20").Equal(v.Subtotal))
}

func TestApplyCoupon_LiveDiscount(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(7, "Arroz 1kg", "2.50", 20))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 7, 3)
	require.NoError(t, err)

	discount, err := e.ApplyCoupon(ctx, "c1", " promo10 ")
	require.NoError(t, err)
	assert.True(t, dec("0.75").Equal(discount))

	v, err := e.AddItem(ctx, "c1", 7, 1)
	require.NoError(t, err)
	assert.Equal(t, "PROMO10", v.AppliedCoupon)
	assert.True(t, dec("10.00").Equal(v.Subtotal))
	assert.True(t, dec("1.00").Equal(v.Discount))
	assert.True(t, dec("9.00").Equal(v.Total))
}

func TestApplyCoupon_IdempotentAndUnknownLeavesState(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Queijo", "20.00", 5))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 1)
	require.NoError(t, err)

	first, err := e.ApplyCoupon(ctx, "c1", "BLACKFRIDAY")
	require.NoError(t, err)
	second, err := e.ApplyCoupon(ctx, "c1", "blackfriday")
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.True(t, dec("4.00").Equal(first))

	_, err = e.ApplyCoupon(ctx, "c1", "NOPE")
	require.ErrorIs(t, err, ErrUnknownCoupon)

	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "BLACKFRIDAY", v.AppliedCoupon)
}

func TestApplyCoupon_FixedCappedAtSubtotal(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Chiclete", "1.50", 5))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.AddItem(ctx, "c1", 1, 2)
	require.NoError(t, err)

	discount, err := e.ApplyCoupon(ctx, "c1", "PRIMEIRACOMPRA")
	require.NoError(t, err)
	assert.True(t, dec("3.00").Equal(discount))

	v, err := e.View(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, v.Total.IsZero())
}

func TestSetAddressAndClear(t *testing.T) {
	oracle := newFakeOracle(newTestProduct(1, "Pão", "0.80", 10))
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()

	_, err := e.SetAddress(ctx, "c1", Address{Street: "Rua A"})
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = e.AddItem(ctx, "c1", 1, 1)
	require.NoError(t, err)
	_, err = e.ApplyCoupon(ctx, "c1", "PROMO10")
	require.NoError(t, err)
	v, err := e.SetAddress(ctx, "c1", Address{
		PostalCode: "01001-000", Street: "Praça da Sé", Number: "1", City: "São Paulo", State: "SP",
	})
	require.NoError(t, err)
	require.NotNil(t, v.Address)
	assert.Equal(t, "São Paulo", v.Address.City)

	v, err = e.Clear(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)
	assert.Empty(t, v.AppliedCoupon)
	assert.Nil(t, v.Address)

	v, err = e.View(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)
}

func TestNewCart(t *testing.T) {
	e, store := newTestEngine(t, newFakeOracle())
	ctx := context.Background()

	v, err := e.NewCart(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)

	r, err := store.Load(ctx, v.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, r.Items)
}

func TestDerivedTotalsHoldForRandomOperations(t *testing.T) {
	oracle := newFakeOracle(
		newTestProduct(1, "A", "1.10", 7),
		newTestProduct(2, "B", "2.35", 3),
		newTestProduct(3, "C", "9.99", 1),
		newTestProduct(4, "D", "0.05", 50),
	)
	e, _ := newTestEngine(t, oracle)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	for range 300 {
		id := int64(rng.IntN(4) + 1)
		var (
			v   *View
			err error
		)
		switch rng.IntN(4) {
		case 0:
			v, err = e.AddItem(ctx, "c1", id, rng.IntN(5)+1)
		case 1:
			_, err = e.Increase(ctx, "c1", id)
		case 2:
			v, err = e.Decrease(ctx, "c1", id)
		case 3:
			v, err = e.Remove(ctx, "c1", id)
		}
		require.NoError(t, err)
		if v == nil {
			v, err = e.View(ctx, "c1")
			require.NoError(t, err)
		}
		assertDerived(t, v)
		for _, l := range v.Lines {
			assert.LessOrEqual(t, l.Quantity, oracle.products[l.ProductID].Stock)
		}
	}
}
