package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateRequest holds the input for creating an order header.
type CreateRequest struct {
	CustomerID     int64
	TotalAmount    decimal.Decimal
	PaymentMethod  string
	IdempotencyKey string
}

// CreateResult is a created or replayed order.
type CreateResult struct {
	Order *Order
	// Replayed is set when the idempotency key matched an existing order.
	Replayed bool
}

// LineRequest holds the input for adding a line to an order.
type LineRequest struct {
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Service encapsulates order lifecycle rules.
type Service struct {
	orders    Repository
	publisher Publisher
}

// NewService creates an order Service. A nil publisher disables events.
func NewService(orders Repository, publisher Publisher) *Service {
	return &Service{
		orders:    orders,
		publisher: publisher,
	}
}

// CreateOrder persists a new order in pending status. Requests repeating an
// idempotency key return the order created first.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.CustomerID <= 0 {
		return nil, ErrCustomerRequired
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return nil, ErrPaymentRequired
	}

	total := req.TotalAmount
	if total.IsNegative() {
		total = decimal.Zero
	}

	o := &Order{
		CustomerID:     req.CustomerID,
		TotalAmount:    total.Round(2),
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		Status:         StatusPending,
		IdempotencyKey: req.IdempotencyKey,
	}
	created, err := s.orders.Create(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	if !created {
		if o.CustomerID != req.CustomerID {
			return nil, ErrIdempotencyConflict
		}
		zctx.From(ctx).Info("Order replayed",
			zap.Int64("order_id", o.ID),
			zap.String("idempotency_key", o.IdempotencyKey),
		)
		return &CreateResult{Order: o, Replayed: true}, nil
	}

	s.publish(ctx, newEvent(EventCreated, o))
	return &CreateResult{Order: o}, nil
}

// AddLine writes one order line and decrements stock. Adding the same product
// twice to an order returns the first line and leaves stock untouched.
func (s *Service) AddLine(ctx context.Context, req LineRequest) (*Line, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	l := &Line{
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice.Round(2),
	}
	created, err := s.orders.AddLine(ctx, l)
	if err != nil {
		return nil, errors.Wrap(err, "add order line")
	}
	if !created {
		zctx.From(ctx).Info("Order line already present",
			zap.Int64("order_id", l.OrderID),
			zap.Int64("product_id", l.ProductID),
		)
	}
	return l, nil
}

// Get returns an order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// ListByCustomer returns the orders of a customer, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64) ([]Order, error) {
	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// SetStatus is the admin transition. Any status may follow any other.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, &InvalidStatusError{Value: string(status)}
	}
	o, err := s.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	s.publish(ctx, newEvent(EventStatusChanged, o))
	return o, nil
}

// ConfirmDelivery is the customer transition from out_for_delivery to
// delivered. It fails with ErrInvalidTransition for any other current status
// or when the order belongs to someone else.
func (s *Service) ConfirmDelivery(ctx context.Context, id, customerID int64) (*Order, error) {
	ok, err := s.orders.CompareAndSetStatus(ctx, id, customerID, StatusOutForDelivery, StatusDelivered)
	if err != nil {
		return nil, errors.Wrap(err, "confirm delivery")
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	s.publish(ctx, newEvent(EventStatusChanged, o))
	return o, nil
}

func (s *Service) publish(ctx context.Context, e Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", e.Type),
			zap.Int64("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}
