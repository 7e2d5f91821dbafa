// Package purchase models restocking: suppliers, purchase orders and their
// lines. Writing a purchase-order line is the only way stock goes up.
package purchase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// StatusRequested is the status of a freshly created purchase order.
const StatusRequested = "requested"

var (
	ErrSupplierNotFound = errors.New("supplier not found")
	ErrNotFound         = errors.New("purchase order not found")
	ErrInvalidQuantity  = errors.New("quantity must be greater than 0")
	ErrDuplicateTaxID   = errors.New("supplier tax id already registered")
	ErrInvalid          = errors.New("invalid purchase data")
)

// Supplier is a vendor products are bought from.
type Supplier struct {
	ID    int64
	Name  string
	TaxID string
	City  string
	Phone string
	Email string
}

// Validate checks the mandatory supplier fields.
func (s *Supplier) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	if strings.TrimSpace(s.TaxID) == "" {
		return fmt.Errorf("%w: tax id required", ErrInvalid)
	}
	return nil
}

// Order is a purchase order header.
type Order struct {
	ID         int64
	SupplierID int64
	Status     string
	CreatedAt  time.Time
}

// Line is a product received under a purchase order.
type Line struct {
	ID              int64
	PurchaseOrderID int64
	ProductID       int64
	Quantity        int
	UnitCost        decimal.Decimal
}

// Repository defines procurement persistence.
type Repository interface {
	CreateSupplier(ctx context.Context, s *Supplier) error
	CreateOrder(ctx context.Context, o *Order) error
	// AddLine inserts l and increments the product stock in one transaction.
	AddLine(ctx context.Context, l *Line) error
}

// Service encapsulates procurement rules.
type Service struct {
	repo Repository
}

// NewService creates a procurement Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateSupplier registers a supplier.
func (s *Service) CreateSupplier(ctx context.Context, sup *Supplier) error {
	if err := sup.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreateSupplier(ctx, sup); err != nil {
		return errors.Wrap(err, "create supplier")
	}
	return nil
}

// CreateOrder opens a purchase order for supplierID.
func (s *Service) CreateOrder(ctx context.Context, supplierID int64) (*Order, error) {
	o := &Order{SupplierID: supplierID, Status: StatusRequested}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create purchase order")
	}
	return o, nil
}

// AddLine records received goods and raises the product stock.
func (s *Service) AddLine(ctx context.Context, l *Line) error {
	if l.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if l.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost must not be negative", ErrInvalid)
	}
	l.UnitCost = l.UnitCost.Round(2)
	if err := s.repo.AddLine(ctx, l); err != nil {
		return errors.Wrap(err, "add purchase order line")
	}
	return nil
}
