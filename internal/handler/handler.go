// Package handler serves the api-server HTTP API: catalog, orders and their
// status workflow, procurement, customers and sessions.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/mercado/internal/domain/auth"
	"github.com/xenking/mercado/internal/domain/customer"
	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/domain/product"
	"github.com/xenking/mercado/internal/domain/purchase"
	"github.com/xenking/mercado/internal/session"
	"github.com/xenking/mercado/internal/wire"
)

const maxBodyBytes = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image refs in product responses.
	ImageBaseURL string
}

// Services groups the domain dependencies of the Handler.
type Services struct {
	Products   product.Repository
	Categories product.CategoryRepository
	Orders     *order.Service
	Purchases  *purchase.Service
	Customers  *customer.Service
	Sessions   *session.Manager
}

// Handler implements the api-server endpoints.
type Handler struct {
	Services
	imageBaseURL string
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig, svc Services) *Handler {
	return &Handler{
		Services:     svc,
		imageBaseURL: strings.TrimSuffix(cfg.ImageBaseURL, "/"),
	}
}

// Routes returns the API router. Paths are relative to the /api mount point.
func (h *Handler) Routes(sec *SecurityHandler) chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)
	r.Get("/categories", h.ListCategories)
	r.Post("/customers", h.RegisterCustomer)
	r.Post("/sessions", h.CreateSession)

	r.Group(func(r chi.Router) {
		r.Use(sec.Require(auth.ScopeCatalogWrite))
		r.Post("/products", h.CreateProduct)
		r.Post("/categories", h.CreateCategory)
		r.Post("/suppliers", h.CreateSupplier)
		r.Post("/purchase-orders", h.CreatePurchaseOrder)
		r.Post("/purchase-orders/{id}/lines", h.AddPurchaseOrderLine)
	})
	r.Group(func(r chi.Router) {
		r.Use(sec.Require(auth.ScopeOrdersWrite))
		r.Post("/orders", h.CreateOrder)
		r.Post("/orders/{id}/lines", h.AddOrderLine)
		r.Put("/orders/{id}/status", h.SetOrderStatus)
		r.Post("/orders/{id}/confirm-delivery", h.ConfirmDelivery)
	})
	r.Group(func(r chi.Router) {
		r.Use(sec.Require(auth.ScopeOrdersRead))
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

var errBadID = errors.New("invalid id")

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, wire.Error{Code: code, Message: msg})
}
