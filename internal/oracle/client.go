// Package oracle is the storefront's HTTP client for the api-server. It
// serves as the cart's stock oracle and drives the order status workflow.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/mercado/internal/cart"
	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/domain/product"
	"github.com/xenking/mercado/internal/wire"
)

var _ cart.StockOracle = (*Client)(nil)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("api-server unavailable")

// StatusError is a non-2xx response that has no cart-level meaning.
type StatusError struct {
	Code    int
	Message string
	Reason  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api-server: %d %s", e.Code, e.Message)
}

// Config configures the client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// MaxFailures consecutive transport or 5xx failures open the breaker for
	// OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTelemetry instruments outgoing requests.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(cl *Client) {
		cl.http = &http.Client{
			Timeout: cl.http.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
			),
		}
	}
}

// Client talks JSON to the api-server.
type Client struct {
	base    *url.URL
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// New creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 10 * time.Second
	}

	c := &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	maxFailures := cfg.MaxFailures
	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "api-server",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: isSuccessful,
	})
	return c, nil
}

// isSuccessful counts only transport failures and 5xx answers against the
// breaker. Client errors mean the server is healthy.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code < http.StatusInternalServerError
	}
	return false
}

// GetProduct returns the live product record.
func (c *Client) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	var out wire.Product
	err := c.do(ctx, http.MethodGet, "/api/products/"+strconv.FormatInt(id, 10), nil, &out)
	if isStatus(err, http.StatusNotFound) {
		return nil, cart.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return out.Domain(), nil
}

// CreateOrder creates an order header. Requests sharing an idempotency key
// resolve to the same order.
func (c *Client) CreateOrder(ctx context.Context, req cart.OrderRequest) (*cart.OrderRef, error) {
	var out wire.Order
	err := c.do(ctx, http.MethodPost, "/api/orders", wire.CreateOrderRequest{
		CustomerID:     req.CustomerID,
		TotalAmount:    req.TotalAmount,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &cart.OrderRef{ID: out.ID, Replayed: out.Replayed}, nil
}

// CreateOrderLine writes one order line; the server decrements stock.
func (c *Client) CreateOrderLine(ctx context.Context, req cart.OrderLineRequest) error {
	path := "/api/orders/" + strconv.FormatInt(req.OrderID, 10) + "/lines"
	err := c.do(ctx, http.MethodPost, path, wire.CreateOrderLineRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	}, nil)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict &&
		statusErr.Reason == wire.ReasonInsufficientStock {
		return &cart.InsufficientStockError{ProductID: req.ProductID, Requested: req.Quantity}
	}
	return err
}

// GetOrder returns an order with its lines.
func (c *Client) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	var out wire.Order
	err := c.do(ctx, http.MethodGet, "/api/orders/"+strconv.FormatInt(id, 10), nil, &out)
	if isStatus(err, http.StatusNotFound) {
		return nil, cart.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return out.Domain(), nil
}

// ConfirmDelivery marks an out-for-delivery order of customerID delivered.
func (c *Client) ConfirmDelivery(ctx context.Context, orderID, customerID int64) (*order.Order, error) {
	var out wire.Order
	path := "/api/orders/" + strconv.FormatInt(orderID, 10) + "/confirm-delivery"
	err := c.do(ctx, http.MethodPost, path, wire.ConfirmDeliveryRequest{CustomerID: customerID}, &out)
	switch {
	case isStatus(err, http.StatusNotFound):
		return nil, cart.ErrOrderNotFound
	case isStatus(err, http.StatusConflict):
		return nil, cart.ErrStatusTransition
	case err != nil:
		return nil, err
	}
	return out.Domain(), nil
}

// Ready probes the api-server readiness endpoint.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil)
}

func isStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.roundTrip(ctx, method, path, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(buf)
	}

	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api_key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode %s %s", method, path)
		}
		return nil
	}

	var conflict wire.Conflict
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &conflict); err != nil {
		zctx.From(ctx).Debug("Non-JSON error body",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
	}
	return &StatusError{
		Code:    resp.StatusCode,
		Message: conflict.Message,
		Reason:  conflict.Reason,
	}
}
