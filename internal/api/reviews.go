package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/internal/events"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

const (
	maxReviewPhotoBytes = 2 << 20
	maxGalleryBytes     = 4 << 20
)

type createReviewRequest struct {
	Text         string   `json:"text" validate:"required,max=1000"`
	Rating       *int     `json:"rating" validate:"omitempty,min=1,max=5"`
	AuthorName   string   `json:"author_name" validate:"max=100"`
	Email        string   `json:"email" validate:"omitempty,email"`
	ProductID    string   `json:"product_id"`
	Photos       []string `json:"photos" validate:"max=5"`
	CaptchaToken string   `json:"captcha_token"`
}

type replyRequest struct {
	Text string `json:"text" validate:"required,max=1000"`
}

// encodedSize is the decoded size of a base64 image, with or without a
// data URL prefix.
func encodedSize(s string) int {
	if strings.HasPrefix(s, "data:") {
		if _, payload, ok := strings.Cut(s, ","); ok {
			s = payload
		}
	}
	return base64.StdEncoding.DecodedLen(len(s))
}

// ListReviews shows moderators unapproved reviews too.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	approvedOnly := u == nil || !u.Role.Can(models.CapModerateReview)

	reviews, err := h.store.Reviews().List(r.Context(), approvedOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, reviews, len(reviews))
}

func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createReviewRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.captcha.Verify(ctx, req.CaptchaToken); err != nil {
		h.fail(w, r, err)
		return
	}

	var fields []models.FieldError
	for i, p := range req.Photos {
		if encodedSize(p) > maxReviewPhotoBytes {
			fields = append(fields, field(fmt.Sprintf("photos[%d]", i), "photo must be at most 2 MB"))
		}
	}
	u := auth.UserFromContext(ctx)
	if u == nil && strings.TrimSpace(req.AuthorName) == "" {
		fields = append(fields, field("author_name", "author_name is required"))
	}
	if len(fields) > 0 {
		h.fail(w, r, badRequest("Validation failed", fields...))
		return
	}

	if req.ProductID != "" {
		_, err := h.store.Products().Get(ctx, req.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			err = badRequest("Product not found", field("product_id", "product does not exist"))
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}

	now := h.now().UTC()
	rv := &models.Review{
		ID:         uuid.NewString(),
		AuthorName: strings.TrimSpace(req.AuthorName),
		Email:      normalizeEmail(req.Email),
		ProductID:  req.ProductID,
		Text:       strings.TrimSpace(req.Text),
		Rating:     req.Rating,
		Photos:     req.Photos,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if rv.Photos == nil {
		rv.Photos = []string{}
	}
	if u != nil {
		rv.UserID = u.ID
		if rv.AuthorName == "" {
			rv.AuthorName = u.Name
		}
		if rv.Email == "" {
			rv.Email = u.Email
		}
	}

	if err := h.store.Reviews().Create(ctx, rv); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"review_id": rv.ID,
		"user_id":   rv.UserID,
		"photos":    len(rv.Photos),
	}).Info("Review submitted")
	h.publish(ctx, events.NewReviewEvent(rv))

	respondOK(w, http.StatusCreated, "Thank you! Your review will be published once approved", rv)
}

func (h *Handler) loadReview(r *http.Request) (*models.Review, error) {
	rv, err := h.store.Reviews().Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Review not found")
	}
	return rv, err
}

func (h *Handler) ApproveReview(w http.ResponseWriter, r *http.Request) {
	rv, err := h.loadReview(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rv.Approved = true
	rv.UpdatedAt = h.now().UTC()
	if err := h.store.Reviews().Update(r.Context(), rv); err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Review approved", rv)
}

func (h *Handler) ReplyToReview(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rv, err := h.loadReview(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.now().UTC()
	rv.Reply = &models.ReviewReply{
		Text:      strings.TrimSpace(req.Text),
		AdminID:   auth.UserFromContext(r.Context()).ID,
		RepliedAt: now,
	}
	rv.UpdatedAt = now
	if err := h.store.Reviews().Update(r.Context(), rv); err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Reply saved", rv)
}

func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	err := h.store.Reviews().SoftDelete(r.Context(), mux.Vars(r)["id"], h.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		err = notFound("Review not found")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Review deleted", nil)
}
