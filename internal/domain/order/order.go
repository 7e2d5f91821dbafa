package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

// Order statuses in their usual progression. Admins may jump between any of
// them; customers may only move an order from out_for_delivery to delivered.
const (
	StatusPending        Status = "pending"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusOutForDelivery, StatusDelivered:
		return true
	}
	return false
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", &InvalidStatusError{Value: v}
	}
	return s, nil
}

// Order is an order header together with its lines.
type Order struct {
	ID             int64
	CustomerID     int64
	TotalAmount    decimal.Decimal
	PaymentMethod  string
	Status         Status
	IdempotencyKey string
	Lines          []Line
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Line is one product entry of an order. UnitPrice is the price the customer
// saw in the cart, not the catalog price at write time.
type Line struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Sentinel errors returned by the order service and repositories.
var (
	ErrNotFound            = errors.New("order not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrIdempotencyConflict = errors.New("idempotency key belongs to another order")
	ErrInvalidQuantity     = errors.New("quantity must be greater than 0")
	ErrPaymentRequired     = errors.New("payment method required")
	ErrCustomerRequired    = errors.New("customer required")
)

// InvalidStatusError is returned for status values outside the enum.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q", e.Value)
}

// InsufficientStockError indicates a line could not be written because the
// product stock is lower than the requested quantity.
type InsufficientStockError struct {
	ProductID int64
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (requested %d)", e.ProductID, e.Requested)
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts o. When o.IdempotencyKey already exists the stored order is
	// copied into o and created is false.
	Create(ctx context.Context, o *Order) (created bool, err error)
	// AddLine inserts l and decrements the product stock in one transaction.
	// A line for the same order and product is copied into l without touching
	// stock and created is false.
	AddLine(ctx context.Context, l *Line) (created bool, err error)
	GetByID(ctx context.Context, id int64) (*Order, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error)
	// CompareAndSetStatus moves the order owned by customerID from one status
	// to another. It reports false when no such order is in the from status.
	CompareAndSetStatus(ctx context.Context, id, customerID int64, from, to Status) (bool, error)
}
