package cart

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/domain/product"
)

// StockOracle is the remote product and order service.
//
// Implementations return ErrProductNotFound for unknown products and
// *InsufficientStockError when a line write is rejected for stock. GetOrder
// returns ErrOrderNotFound for unknown orders. Any other error is treated as a
// transport failure.
type StockOracle interface {
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderRef, error)
	CreateOrderLine(ctx context.Context, req OrderLineRequest) error
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
}

// OrderRequest creates an order header.
type OrderRequest struct {
	CustomerID     int64
	TotalAmount    decimal.Decimal
	PaymentMethod  string
	IdempotencyKey string
}

// OrderRef identifies a created order.
type OrderRef struct {
	ID       int64
	Replayed bool
}

// OrderLineRequest creates one order line. The server decrements stock.
type OrderLineRequest struct {
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Session resolves the acting customer. ok is false for anonymous sessions.
type Session interface {
	CustomerID() (id int64, ok bool)
}

// Anonymous is a Session without a customer.
type Anonymous struct{}

func (Anonymous) CustomerID() (int64, bool) { return 0, false }

// Customer is a Session bound to a customer id.
type Customer int64

func (c Customer) CustomerID() (int64, bool) { return int64(c), c > 0 }
