package handler

import (
	"net/http"
	"strconv"

	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/wire"
)

// CreateOrder creates an order header. A repeated idempotency key answers
// 200 with the original order instead of 201.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateOrderRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Orders.CreateOrder(r.Context(), order.CreateRequest{
		CustomerID:     req.CustomerID,
		TotalAmount:    req.TotalAmount,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := wire.FromOrder(res.Order)
	out.Replayed = res.Replayed
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, out)
}

// AddOrderLine writes one order line and takes its quantity from stock.
func (h *Handler) AddOrderLine(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req wire.CreateOrderLineRequest
	if !decode(w, r, &req) {
		return
	}
	line, err := h.Orders.AddLine(r.Context(), order.LineRequest{
		OrderID:   id,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wire.FromOrderLine(line))
}

// GetOrder returns an order with its lines.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromOrder(o))
}

// ListOrders returns the orders of ?customer_id=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64)
	if err != nil || customerID <= 0 {
		writeMessage(w, http.StatusBadRequest, "customer_id required")
		return
	}
	orders, err := h.Orders.ListByCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]wire.Order, len(orders))
	for i := range orders {
		out[i] = wire.FromOrder(&orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// SetOrderStatus moves an order to any status.
func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req wire.SetStatusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.SetStatus(r.Context(), id, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromOrder(o))
}

// ConfirmDelivery lets the owning customer mark an out-for-delivery order
// as delivered.
func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req wire.ConfirmDeliveryRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CustomerID <= 0 {
		writeError(w, r, order.ErrCustomerRequired)
		return
	}
	o, err := h.Orders.ConfirmDelivery(r.Context(), id, req.CustomerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromOrder(o))
}
