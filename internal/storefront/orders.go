package storefront

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/mercado/internal/cart"
	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/session"
)

// orderView is what a customer sees of an order.
type orderView struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	// CanConfirm is set while the order is out for delivery.
	CanConfirm bool `json:"can_confirm_delivery"`
}

// sessionOf returns the request identity. Anonymous requests yield an
// identity without a customer.
func sessionOf(r *http.Request) cart.Session {
	return session.FromContext(r.Context())
}

// GetOrder shows one of the customer's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	customerID, ok := sessionOf(r).CustomerID()
	if !ok {
		writeFailure(w, r, cart.ErrUnauthenticated, Result{})
		return
	}
	id, err := int64Param(r, "orderID")
	if err != nil {
		writeFailure(w, r, err, Result{})
		return
	}
	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeFailure(w, r, workflowError(err), Result{})
		return
	}
	if o.CustomerID != customerID {
		writeFailure(w, r, cart.ErrOrderNotFound, Result{})
		return
	}
	writeJSON(w, http.StatusOK, orderView{
		ID:         o.ID,
		Status:     string(o.Status),
		CanConfirm: o.Status == order.StatusOutForDelivery,
	})
}

// ConfirmDelivery marks an out-for-delivery order as delivered.
func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	customerID, ok := sessionOf(r).CustomerID()
	if !ok {
		writeFailure(w, r, cart.ErrUnauthenticated, Result{})
		return
	}
	id, err := int64Param(r, "orderID")
	if err != nil {
		writeFailure(w, r, err, Result{})
		return
	}
	if _, err := h.orders.ConfirmDelivery(r.Context(), id, customerID); err != nil {
		writeFailure(w, r, workflowError(err), Result{OrderID: id})
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true, OrderID: id})
}

// workflowError classifies oracle client errors the same way the cart
// engine does.
func workflowError(err error) error {
	var remoteErr *cart.RemoteError
	switch {
	case errors.Is(err, cart.ErrOrderNotFound),
		errors.Is(err, cart.ErrStatusTransition),
		errors.As(err, &remoteErr):
		return err
	}
	return &cart.RemoteError{Op: "order workflow", Err: err}
}
