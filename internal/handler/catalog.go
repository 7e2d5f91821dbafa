package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/mercado/internal/domain/product"
	"github.com/xenking/mercado/internal/wire"
)

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]wire.Product, len(products))
	for i := range products {
		out[i] = h.productView(&products[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProduct returns a single product with its live stock.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.productView(p))
}

// CreateProduct adds a product to the catalog.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateProductRequest
	if !decode(w, r, &req) {
		return
	}
	p := &product.Product{
		CategoryID:  req.CategoryID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price.Round(2),
		Stock:       req.Stock,
		ImageRef:    req.ImageRef,
	}
	if err := p.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Products.Create(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.productView(p))
}

// ListCategories returns all categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Categories.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]wire.Category, len(cats))
	for i, c := range cats {
		out[i] = wire.Category{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateCategory adds a category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateCategoryRequest
	if !decode(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeMessage(w, http.StatusBadRequest, "name required")
		return
	}
	c := &product.Category{Name: name}
	if err := h.Categories.CreateCategory(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wire.Category{ID: c.ID, Name: c.Name})
}

// productView converts p for the wire, resolving relative image refs
// against the configured base URL.
func (h *Handler) productView(p *product.Product) wire.Product {
	out := wire.FromProduct(p)
	if h.imageBaseURL != "" && out.ImageRef != "" && !strings.Contains(out.ImageRef, "://") {
		out.ImageRef = h.imageBaseURL + "/" + strings.TrimPrefix(out.ImageRef, "/")
	}
	return out
}
