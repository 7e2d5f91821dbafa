package cart

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors returned by the engine.
var (
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrUnknownCoupon    = errors.New("unknown coupon")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrUnauthenticated  = errors.New("customer not identified")
	ErrInvalidAddress   = errors.New("address incomplete")
	ErrPaymentRequired  = errors.New("payment method required")
	ErrOrderNotFound    = errors.New("order not found")
	ErrStatusTransition = errors.New("order status does not allow this transition")
)

// InsufficientStockError reports a line whose quantity exceeds live stock.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// RemoteError wraps a transport or server failure of the oracle.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// PartialCheckoutError reports that the order header exists but a line write
// failed. Written lines stay on the server; retrying the checkout with the
// same cart resumes with the same order.
type PartialCheckoutError struct {
	OrderID   int64
	Written   int
	ProductID int64
	Err       error
}

func (e *PartialCheckoutError) Error() string {
	return fmt.Sprintf("order %d: line for product %d failed after %d written: %v",
		e.OrderID, e.ProductID, e.Written, e.Err)
}

func (e *PartialCheckoutError) Unwrap() error {
	return e.Err
}

// remote wraps err as a RemoteError unless it already carries a domain
// meaning.
func remote(op string, err error) error {
	var stockErr *InsufficientStockError
	switch {
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrStatusTransition),
		errors.As(err, &stockErr):
		return err
	}
	return &RemoteError{Op: op, Err: err}
}
