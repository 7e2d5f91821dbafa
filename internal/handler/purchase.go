package handler

import (
	"net/http"

	"github.com/xenking/mercado/internal/domain/purchase"
	"github.com/xenking/mercado/internal/wire"
)

// CreateSupplier registers a supplier.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req wire.Supplier
	if !decode(w, r, &req) {
		return
	}
	s := &purchase.Supplier{
		Name:  req.Name,
		TaxID: req.TaxID,
		City:  req.City,
		Phone: req.Phone,
		Email: req.Email,
	}
	if err := h.Purchases.CreateSupplier(r.Context(), s); err != nil {
		writeError(w, r, err)
		return
	}
	req.ID = s.ID
	writeJSON(w, http.StatusCreated, req)
}

// CreatePurchaseOrder opens a purchase order.
func (h *Handler) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req wire.CreatePurchaseOrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Purchases.CreateOrder(r.Context(), req.SupplierID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wire.PurchaseOrder{
		ID:         o.ID,
		SupplierID: o.SupplierID,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
	})
}

// AddPurchaseOrderLine records received goods, raising stock.
func (h *Handler) AddPurchaseOrderLine(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req wire.PurchaseOrderLine
	if !decode(w, r, &req) {
		return
	}
	l := &purchase.Line{
		PurchaseOrderID: id,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		UnitCost:        req.UnitCost,
	}
	if err := h.Purchases.AddLine(r.Context(), l); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wire.PurchaseOrderLine{
		ID:              l.ID,
		PurchaseOrderID: l.PurchaseOrderID,
		ProductID:       l.ProductID,
		Quantity:        l.Quantity,
		UnitCost:        l.UnitCost,
	})
}
