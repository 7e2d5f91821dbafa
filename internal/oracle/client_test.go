package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/mercado/internal/cart"
	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/wire"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second, MaxFailures: 2, OpenTimeout: time.Minute},
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := New(Config{BaseURL: "api-server:8080"})
	require.Error(t, err)
}

func TestGetProduct(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "7" {
			writeJSON(w, http.StatusNotFound, wire.Error{Code: 404, Message: "product not found"})
			return
		}
		assert.Equal(t, "k", r.Header.Get("api_key"))
		writeJSON(w, http.StatusOK, wire.Product{ID: 7, Name: "Arroz", Price: decimal.RequireFromString("2.50"), Stock: 5})
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	p, err := c.GetProduct(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Arroz", p.Name)
	assert.Equal(t, 5, p.Stock)
	assert.True(t, decimal.RequireFromString("2.50").Equal(p.Price))

	_, err = c.GetProduct(ctx, 8)
	require.ErrorIs(t, err, cart.ErrProductNotFound)
}

func TestCreateOrderAndLine(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		var req wire.CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "key-1", req.IdempotencyKey)
		assert.Equal(t, int64(3), req.CustomerID)
		writeJSON(w, http.StatusOK, wire.Order{ID: 11, Status: "pending", Replayed: true})
	})
	r.Post("/api/orders/{id}/lines", func(w http.ResponseWriter, r *http.Request) {
		var req wire.CreateOrderLineRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Quantity > 2 {
			writeJSON(w, http.StatusConflict, wire.Conflict{
				Error:     wire.Error{Code: 409, Message: "insufficient stock"},
				Reason:    wire.ReasonInsufficientStock,
				ProductID: req.ProductID,
			})
			return
		}
		writeJSON(w, http.StatusCreated, wire.OrderLine{ID: 1, OrderID: 11, ProductID: req.ProductID, Quantity: req.Quantity})
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	ref, err := c.CreateOrder(ctx, cart.OrderRequest{
		CustomerID: 3, TotalAmount: decimal.NewFromInt(10), PaymentMethod: "pix", IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), ref.ID)
	assert.True(t, ref.Replayed)

	require.NoError(t, c.CreateOrderLine(ctx, cart.OrderLineRequest{OrderID: 11, ProductID: 1, Quantity: 2}))

	err = c.CreateOrderLine(ctx, cart.OrderLineRequest{OrderID: 11, ProductID: 1, Quantity: 3})
	var stockErr *cart.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(1), stockErr.ProductID)
}

func TestOrderWorkflow(t *testing.T) {
	status := order.StatusOutForDelivery
	r := chi.NewRouter()
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, wire.Order{ID: 1, CustomerID: 2, Status: string(status)})
	})
	r.Post("/api/orders/{id}/confirm-delivery", func(w http.ResponseWriter, _ *http.Request) {
		if status != order.StatusOutForDelivery {
			writeJSON(w, http.StatusConflict, wire.Conflict{
				Error:  wire.Error{Code: 409, Message: "invalid status transition"},
				Reason: wire.ReasonInvalidTransition,
			})
			return
		}
		status = order.StatusDelivered
		writeJSON(w, http.StatusOK, wire.Order{ID: 1, CustomerID: 2, Status: string(status)})
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	o, err := c.ConfirmDelivery(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)

	_, err = c.ConfirmDelivery(ctx, 1, 2)
	require.ErrorIs(t, err, cart.ErrStatusTransition)

	o, err = c.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, wire.Error{Code: 500, Message: "boom"})
	}))
	ctx := context.Background()

	for range 2 {
		_, err := c.GetProduct(ctx, 1)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	}

	_, err := c.GetProduct(ctx, 1)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, wire.Error{Code: 404, Message: "product not found"})
	}))
	ctx := context.Background()

	for range 5 {
		_, err := c.GetProduct(ctx, 1)
		require.ErrorIs(t, err, cart.ErrProductNotFound)
	}
}

func TestEngineAgainstClient(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, wire.Product{ID: 7, Name: "Arroz", Price: decimal.RequireFromString("2.50"), Stock: 5})
	})
	c := newTestClient(t, r)

	e, err := cart.NewEngine(c, cart.NewMemoryStore(), nil)
	require.NoError(t, err)

	v, err := e.AddItem(context.Background(), "c1", 7, 3)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("7.50").Equal(v.Subtotal))
}
