package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/mercado/internal/domain/customer"
	"github.com/xenking/mercado/internal/domain/order"
	"github.com/xenking/mercado/internal/domain/product"
	"github.com/xenking/mercado/internal/domain/purchase"
	"github.com/xenking/mercado/internal/wire"
)

// writeError maps domain errors onto HTTP responses. Anything unmapped is
// logged and answered with a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr  *order.InsufficientStockError
		statusErr *order.InvalidStatusError
	)
	switch {
	case errors.As(err, &stockErr):
		writeConflict(w, wire.ReasonInsufficientStock, stockErr.ProductID, "insufficient stock")
	case errors.Is(err, order.ErrInvalidTransition):
		writeConflict(w, wire.ReasonInvalidTransition, 0, "invalid status transition")
	case errors.Is(err, order.ErrIdempotencyConflict):
		writeConflict(w, wire.ReasonIdempotency, 0, "idempotency key already used")
	case errors.As(err, &statusErr):
		writeMessage(w, http.StatusUnprocessableEntity, statusErr.Error())

	case errors.Is(err, errBadID):
		writeMessage(w, http.StatusBadRequest, "invalid id")
	case errors.Is(err, product.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "product not found")
	case errors.Is(err, order.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "order not found")
	case errors.Is(err, purchase.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "purchase order not found")

	case errors.Is(err, product.ErrInvalid),
		errors.Is(err, purchase.ErrInvalid),
		errors.Is(err, customer.ErrInvalid):
		// Validation errors carry their detail and are returned unwrapped.
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, customer.ErrEmailTaken):
		writeMessage(w, http.StatusConflict, "email already registered")
	case errors.Is(err, purchase.ErrDuplicateTaxID):
		writeMessage(w, http.StatusConflict, "supplier already registered")
	case errors.Is(err, customer.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "invalid credentials")

	default:
		for _, sentinel := range unprocessable {
			if errors.Is(err, sentinel) {
				writeMessage(w, http.StatusUnprocessableEntity, sentinel.Error())
				return
			}
		}
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeConflict(w http.ResponseWriter, reason string, productID int64, msg string) {
	writeJSON(w, http.StatusConflict, wire.Conflict{
		Error:     wire.Error{Code: http.StatusConflict, Message: msg},
		Reason:    reason,
		ProductID: productID,
	})
}

// unprocessable are well-formed requests the domain refuses.
var unprocessable = []error{
	order.ErrInvalidQuantity,
	order.ErrPaymentRequired,
	order.ErrCustomerRequired,
	purchase.ErrInvalidQuantity,
	purchase.ErrSupplierNotFound,
	product.ErrCategoryNotFound,
}
