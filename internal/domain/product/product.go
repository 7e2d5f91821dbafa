package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrCategoryNotFound is returned when a product references an unknown category.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrInvalid wraps validation failures of admin input.
	ErrInvalid = errors.New("invalid product")
)

// Product is a catalog item together with its live stock counter.
// Stock is owned by the server and only changes through order and
// purchase-order lines.
type Product struct {
	ID          int64
	CategoryID  int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	ImageRef    string
}

// Category groups products on the storefront shelves.
type Category struct {
	ID   int64
	Name string
}

// Repository defines catalog persistence.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	Create(ctx context.Context, p *Product) error
}

// CategoryRepository defines category persistence.
type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c *Category) error
}

// Validate checks the fields an admin must provide when creating a product.
func (p *Product) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name required", ErrInvalid)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalid)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalid)
	}
	return nil
}
