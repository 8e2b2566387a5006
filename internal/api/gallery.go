package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

type galleryRequest struct {
	Image       string `json:"image" validate:"required"`
	Title       string `json:"title" validate:"max=255"`
	Description string `json:"description" validate:"max=500"`
	Position    int    `json:"position" validate:"min=0"`
}

func (h *Handler) ListGallery(w http.ResponseWriter, r *http.Request) {
	photos, err := h.store.Gallery().ListActive(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, photos, len(photos))
}

func (h *Handler) AddGalleryPhoto(w http.ResponseWriter, r *http.Request) {
	var req galleryRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if encodedSize(req.Image) > maxGalleryBytes {
		h.fail(w, r, badRequest("Image is too large", field("image", "image must be at most 4 MB")))
		return
	}

	now := h.now().UTC()
	p := &models.GalleryPhoto{
		ID:          uuid.NewString(),
		Image:       req.Image,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Position:    req.Position,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.Gallery().Create(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, "Photo added", p)
}

func (h *Handler) DeleteGalleryPhoto(w http.ResponseWriter, r *http.Request) {
	err := h.store.Gallery().SoftDelete(r.Context(), mux.Vars(r)["id"], h.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		err = notFound("Photo not found")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Photo deleted", nil)
}
