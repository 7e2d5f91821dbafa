// Package storefront serves the cart and checkout API to shoppers.
//
// Failures are reported with short user-facing messages; transport and
// server details are logged and never returned to the client.
package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/mercado/internal/cart"
	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/session"
)

const maxBodyBytes = 64 << 10

// OrderWorkflow is the customer side of the order status workflow.
type OrderWorkflow interface {
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	ConfirmDelivery(ctx context.Context, orderID, customerID int64) (*order.Order, error)
}

// Handler serves the storefront endpoints.
type Handler struct {
	engine   *cart.Engine
	orders   OrderWorkflow
	sessions *session.Manager
}

// NewHandler creates a Handler.
func NewHandler(engine *cart.Engine, orders OrderWorkflow, sessions *session.Manager) *Handler {
	return &Handler{
		engine:   engine,
		orders:   orders,
		sessions: sessions,
	}
}

// Result is the body of command endpoints.
type Result struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message,omitempty"`
	OrderID  int64            `json:"order_id,omitempty"`
	Discount *decimal.Decimal `json:"discount,omitempty"`
	Receipt  *cart.Receipt    `json:"receipt,omitempty"`
	Cart     *cart.View       `json:"cart,omitempty"`
}

// Routes returns the storefront router, relative to the /api mount point.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(session.Middleware(h.sessions, func(w http.ResponseWriter, _ *http.Request, _ error) {
		writeJSON(w, http.StatusUnauthorized, Result{Message: msgBadSession})
	}))

	r.Post("/carts", h.CreateCart)
	r.Route("/carts/{cartID}", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Post("/items/{productID}/increase", h.IncreaseItem)
		r.Post("/items/{productID}/decrease", h.DecreaseItem)
		r.Delete("/items/{productID}", h.RemoveItem)
		r.Post("/coupon", h.ApplyCoupon)
		r.Put("/address", h.SetAddress)
		r.Post("/checkout", h.Checkout)
	})
	r.Get("/orders/{orderID}", h.GetOrder)
	r.Post("/orders/{orderID}/confirm-delivery", h.ConfirmDelivery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Result{Message: "Not found"})
	})
	return r
}

var errBadID = errors.New("invalid id")

func int64Param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, Result{Message: msgBadRequest})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// User-facing messages.
const (
	msgBadRequest      = "Invalid request"
	msgBadSession      = "Session expired, please sign in again"
	msgUnauthenticated = "Customer not identified, please sign in"
	msgProductNotFound = "Product not found"
	msgInvalidQuantity = "Quantity must be at least 1"
	msgUnknownCoupon   = "Invalid coupon"
	msgEmptyCart       = "Your cart is empty"
	msgPaymentRequired = "Choose a payment method"
	msgInvalidAddress  = "Postal code, street and city are required"
	msgOrderNotFound   = "Order not found"
	msgNotOutForDeliv  = "The order is not out for delivery"
	msgUnavailable     = "Service unavailable, please try again"
	msgPartialCheckout = "Your order was created but some items could not be saved, please try again"
	msgInternal        = "Something went wrong"
)

// failure maps err onto a status code and user message.
func failure(err error) (int, string) {
	var (
		stockErr   *cart.InsufficientStockError
		partialErr *cart.PartialCheckoutError
		remoteErr  *cart.RemoteError
	)
	switch {
	case errors.Is(err, errBadID):
		return http.StatusBadRequest, msgBadRequest
	case errors.As(err, &partialErr):
		return http.StatusBadGateway, msgPartialCheckout
	case errors.As(err, &stockErr):
		name := stockErr.ProductName
		if name == "" {
			name = "product " + strconv.FormatInt(stockErr.ProductID, 10)
		}
		return http.StatusConflict, "Insufficient stock for " + name
	case errors.Is(err, cart.ErrProductNotFound):
		return http.StatusNotFound, msgProductNotFound
	case errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, msgInvalidQuantity
	case errors.Is(err, cart.ErrUnknownCoupon):
		return http.StatusUnprocessableEntity, msgUnknownCoupon
	case errors.Is(err, cart.ErrEmptyCart):
		return http.StatusUnprocessableEntity, msgEmptyCart
	case errors.Is(err, cart.ErrUnauthenticated):
		return http.StatusUnauthorized, msgUnauthenticated
	case errors.Is(err, cart.ErrPaymentRequired):
		return http.StatusBadRequest, msgPaymentRequired
	case errors.Is(err, cart.ErrInvalidAddress):
		return http.StatusBadRequest, msgInvalidAddress
	case errors.Is(err, cart.ErrOrderNotFound):
		return http.StatusNotFound, msgOrderNotFound
	case errors.Is(err, cart.ErrStatusTransition):
		return http.StatusConflict, msgNotOutForDeliv
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway, msgUnavailable
	}
	return http.StatusInternalServerError, msgInternal
}

func writeFailure(w http.ResponseWriter, r *http.Request, err error, res Result) {
	code, msg := failure(err)
	lg := zctx.From(r.Context())
	if code >= http.StatusInternalServerError {
		lg.Warn("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}
	res.Success = false
	res.Message = msg
	writeJSON(w, code, res)
}
