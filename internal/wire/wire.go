// Package wire defines the JSON bodies exchanged with the api-server. The
// server handlers encode them and the storefront oracle client decodes them.
package wire

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/domain/product"
)

// Error is the body of every non-2xx response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Reasons distinguishing the causes of a 409 response.
const (
	ReasonInsufficientStock = "insufficient_stock"
	ReasonInvalidTransition = "invalid_transition"
	ReasonIdempotency       = "idempotency_conflict"
)

// Conflict is the body of 409 responses.
type Conflict struct {
	Error
	Reason    string `json:"reason"`
	ProductID int64  `json:"product_id,omitempty"`
}

type Product struct {
	ID          int64           `json:"id"`
	CategoryID  int64           `json:"category_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageRef    string          `json:"image_ref,omitempty"`
}

func FromProduct(p *product.Product) Product {
	return Product{
		ID:          p.ID,
		CategoryID:  p.CategoryID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		ImageRef:    p.ImageRef,
	}
}

func (p Product) Domain() *product.Product {
	return &product.Product{
		ID:          p.ID,
		CategoryID:  p.CategoryID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		ImageRef:    p.ImageRef,
	}
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CreateOrderRequest struct {
	CustomerID     int64           `json:"customer_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentMethod  string          `json:"payment_method"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type OrderLine struct {
	ID        int64           `json:"id,omitempty"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func FromOrderLine(l *order.Line) OrderLine {
	return OrderLine{
		ID:        l.ID,
		OrderID:   l.OrderID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice,
	}
}

type CreateOrderLineRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID            int64           `json:"id"`
	CustomerID    int64           `json:"customer_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	Lines         []OrderLine     `json:"lines,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	// Replayed is set on create responses answered from an earlier request
	// with the same idempotency key.
	Replayed bool `json:"replayed,omitempty"`
}

func FromOrder(o *order.Order) Order {
	out := Order{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		TotalAmount:   o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for i := range o.Lines {
		out.Lines = append(out.Lines, FromOrderLine(&o.Lines[i]))
	}
	return out
}

func (o Order) Domain() *order.Order {
	out := &order.Order{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		TotalAmount:   o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
		Status:        order.Status(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, l := range o.Lines {
		out.Lines = append(out.Lines, order.Line{
			ID:        l.ID,
			OrderID:   l.OrderID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return out
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type ConfirmDeliveryRequest struct {
	CustomerID int64 `json:"customer_id"`
}

type CreateProductRequest struct {
	CategoryID  int64           `json:"category_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageRef    string          `json:"image_ref,omitempty"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
}

type Supplier struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
	City  string `json:"city,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type CreatePurchaseOrderRequest struct {
	SupplierID int64 `json:"supplier_id"`
}

type PurchaseOrder struct {
	ID         int64     `json:"id"`
	SupplierID int64     `json:"supplier_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type PurchaseOrderLine struct {
	ID              int64           `json:"id,omitempty"`
	PurchaseOrderID int64           `json:"purchase_order_id,omitempty"`
	ProductID       int64           `json:"product_id"`
	Quantity        int             `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

type RegisterCustomerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
}

type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type SessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Customer  Customer  `json:"customer"`
}
