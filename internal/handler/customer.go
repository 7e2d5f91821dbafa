package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/mercado/internal/domain/customer"
	"github.com/xenking/mercado/internal/wire"
)

// RegisterCustomer creates a storefront account.
func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req wire.RegisterCustomerRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Customers.Register(r.Context(), customer.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, customerView(c))
}

// CreateSession checks credentials and issues a session token.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req wire.SessionRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Customers.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, exp, err := h.Sessions.Issue(c.ID, c.Email)
	if err != nil {
		writeError(w, r, errors.Wrap(err, "issue session"))
		return
	}
	writeJSON(w, http.StatusOK, wire.Session{
		Token:     token,
		ExpiresAt: exp,
		Customer:  customerView(c),
	})
}

func customerView(c *customer.Customer) wire.Customer {
	return wire.Customer{ID: c.ID, Name: c.Name, Email: c.Email, Phone: c.Phone}
}
