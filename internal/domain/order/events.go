package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event types published by the order service.
const (
	EventCreated       = "order.created"
	EventStatusChanged = "order.status_changed"
)

// Event is a notification about an order lifecycle change.
type Event struct {
	Type       string          `json:"type"`
	OrderID    int64           `json:"order_id"`
	CustomerID int64           `json:"customer_id"`
	Status     Status          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher delivers order events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

func newEvent(typ string, o *Order) Event {
	return Event{
		Type:       typ,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Total:      o.TotalAmount,
		OccurredAt: time.Now().UTC(),
	}
}
