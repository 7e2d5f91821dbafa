package storefront

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/mercado/internal/cart"
)

type addItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type couponRequest struct {
	Code string `json:"code"`
}

type checkoutRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// CreateCart allocates an empty cart.
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.NewCart(r.Context())
	if err != nil {
		writeFailure(w, r, err, Result{})
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GetCart returns the cart view.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r)(h.engine.View(r.Context(), chi.URLParam(r, "cartID")))
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r)(h.engine.Clear(r.Context(), chi.URLParam(r, "cartID")))
}

// AddItem adds a product, clamped to stock.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	v, err := h.engine.AddItem(r.Context(), chi.URLParam(r, "cartID"), req.ProductID, req.Quantity)
	if err != nil {
		writeFailure(w, r, err, Result{})
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true, Cart: v})
}

// IncreaseItem adds one unit if stock allows.
func (h *Handler) IncreaseItem(w http.ResponseWriter, r *http.Request) {
	pid, err := int64Param(r, "productID")
	if err != nil {
		writeFailure(w, r, err, Result{})
		return
	}
	ok, err := h.engine.Increase(r.Context(), chi.URLParam(r, "cartID"), pid)
	if err != nil {
		writeFailure(w, r, err, Result{})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Increased bool `json:"increased"`
	}{ok})
}

// DecreaseItem removes one unit, never dropping the line.
func (h *Handler) DecreaseItem(w http.ResponseWriter, r *http.Request) {
	pid, err := int64Param(r, "productID")
	if err != nil {
		writeFailure(w, r, err, Result{})
		return
	}
	h.respondView(w, r)(h.engine.Decrease(r.Context(), chi.URLParam(r, "cartID"), pid))
}

// RemoveItem drops a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	pid, err := int64Param(r, "productID")
	if err != nil {
		writeFailure(w, r, err, Result{})
		return
	}
	h.respondView(w, r)(h.engine.Remove(r.Context(), chi.URLParam(r, "cartID"), pid))
}

// ApplyCoupon applies a coupon code and reports the current discount.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !decode(w, r, &req) {
		return
	}
	discount, err := h.engine.ApplyCoupon(r.Context(), chi.URLParam(r, "cartID"), req.Code)
	if err != nil {
		writeFailure(w, r, err, Result{Discount: &discount})
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true, Discount: &discount})
}

// SetAddress stores the shipping address.
func (h *Handler) SetAddress(w http.ResponseWriter, r *http.Request) {
	var addr cart.Address
	if !decode(w, r, &addr) {
		return
	}
	h.respondView(w, r)(h.engine.SetAddress(r.Context(), chi.URLParam(r, "cartID"), addr))
}

// Checkout places the order for the signed-in customer.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.engine.Checkout(r.Context(), sessionOf(r), chi.URLParam(r, "cartID"), req.PaymentMethod)
	if err != nil {
		var (
			res     Result
			partial *cart.PartialCheckoutError
		)
		if errors.As(err, &partial) {
			res.OrderID = partial.OrderID
		}
		writeFailure(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, Result{Success: true, OrderID: receipt.OrderID, Receipt: receipt})
}

func (h *Handler) respondView(w http.ResponseWriter, r *http.Request) func(*cart.View, error) {
	return func(v *cart.View, err error) {
		if err != nil {
			writeFailure(w, r, err, Result{})
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
