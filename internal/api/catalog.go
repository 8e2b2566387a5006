package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

type createProductRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	PriceCents  *int64 `json:"price_cents" validate:"required,min=0"`
	Image       string `json:"image"`
	Flavor      string `json:"flavor" validate:"max=100"`
	Available   *bool  `json:"available"`
	Stock       *int   `json:"stock" validate:"omitempty,min=0"`
}

type updateProductRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	PriceCents  *int64  `json:"price_cents" validate:"omitempty,min=0"`
	Image       *string `json:"image"`
	Flavor      *string `json:"flavor" validate:"omitempty,max=100"`
	Available   *bool   `json:"available"`
	Stock       *int    `json:"stock" validate:"omitempty,min=0"`
}

// ListProducts shows catalog managers unavailable products too.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	all := u != nil && u.Role.Can(models.CapManageCatalog)

	products, err := h.store.Products().List(r.Context(), all)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, products, len(products))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Products().Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		err = notFound("Product not found")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", p)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.now().UTC()
	p := &models.Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		PriceCents:  *req.PriceCents,
		Image:       req.Image,
		Flavor:      req.Flavor,
		Available:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Available != nil {
		p.Available = *req.Available
	}
	if req.Stock != nil {
		p.Stock = *req.Stock
	}

	if err := h.store.Products().Create(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.WithField("product_id", p.ID).Info("Product created")
	respondOK(w, http.StatusCreated, "Product created", p)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.store.Products().Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		err = notFound("Product not found")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.PriceCents != nil {
		p.PriceCents = *req.PriceCents
	}
	if req.Image != nil {
		p.Image = *req.Image
	}
	if req.Flavor != nil {
		p.Flavor = *req.Flavor
	}
	if req.Available != nil {
		p.Available = *req.Available
	}
	if req.Stock != nil {
		p.Stock = *req.Stock
	}
	p.UpdatedAt = h.now().UTC()

	if err := h.store.Products().Update(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Product updated", p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.store.Products().SoftDelete(r.Context(), id, h.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		err = notFound("Product not found")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.WithField("product_id", id).Info("Product deleted")
	respondOK(w, http.StatusOK, "Product deleted", nil)
}

type pricingView struct {
	models.BoxPricing
	BySize map[string]int64 `json:"by_size"`
}

func (h *Handler) GetPricing(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Pricing().Get(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", pricingView{BoxPricing: p, BySize: p.BySize()})
}

func (h *Handler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req models.BoxPricingUpdate
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Empty() {
		h.fail(w, r, badRequest("At least one box price is required"))
		return
	}
	var fields []models.FieldError
	for _, p := range []struct {
		name  string
		value *int64
	}{
		{"price_4_cents", req.Price4},
		{"price_6_cents", req.Price6},
		{"price_12_cents", req.Price12},
	} {
		if p.value != nil && *p.value < 0 {
			fields = append(fields, field(p.name, p.name+" must be at least 0"))
		}
	}
	if len(fields) > 0 {
		h.fail(w, r, badRequest("Validation failed", fields...))
		return
	}

	current, err := h.store.Pricing().Get(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	updated := current.Apply(req)
	updated.UpdatedAt = h.now().UTC()
	if err := h.store.Pricing().Save(r.Context(), updated); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.WithField("pricing", updated.BySize()).Info("Box pricing updated")
	respondOK(w, http.StatusOK, "Box pricing updated", pricingView{BoxPricing: updated, BySize: updated.BySize()})
}
