package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/internal/events"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

type createIntentRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents" validate:"min=0"`
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
	OrderID         string `json:"order_id"`
}

type intentView struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
}

// payableOrder loads an order the caller may pay for. Guest orders are
// payable by anyone holding their id.
func (h *Handler) payableOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := h.store.Orders().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Order not found")
	}
	if err != nil {
		return nil, err
	}
	if !o.IsGuest() {
		u := auth.UserFromContext(ctx)
		if u == nil {
			return nil, unauthorized("Authentication required")
		}
		if u.ID != o.UserID && !u.Role.Can(models.CapManageOrders) {
			return nil, forbidden("You do not have permission to pay for this order")
		}
	}
	return o, nil
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createIntentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.payments.Configured() {
		h.fail(w, r, internal("Online payment is not available"))
		return
	}

	amount := req.AmountCents
	var o *models.Order
	if req.OrderID != "" {
		var err error
		if o, err = h.payableOrder(ctx, req.OrderID); err != nil {
			h.fail(w, r, err)
			return
		}
		if o.PaymentConfirmed {
			h.fail(w, r, badRequest("This order has already been paid"))
			return
		}
		amount = o.TotalCents
	}
	if amount <= 0 {
		h.fail(w, r, badRequest("A positive amount is required", field("amount_cents", "amount_cents must be greater than 0")))
		return
	}

	intent, err := h.payments.CreateIntent(ctx, amount, req.OrderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if o != nil {
		o.PaymentIntentID = intent.ID
		o.PaymentMethod = models.PaymentOnline
		o.UpdatedAt = h.now().UTC()
		if err := h.store.Orders().Update(ctx, o); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.logger.WithFields(logrus.Fields{
		"order_id":     req.OrderID,
		"amount_cents": amount,
		"provider":     "payment",
	}).Info("Payment intent created")

	respondOK(w, http.StatusOK, "Payment intent created", intentView{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountCents:     intent.Amount,
		Currency:        intent.Currency,
	})
}

// ConfirmPayment checks an intent with the provider and, for an order,
// marks it paid and moves it to processing.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req confirmPaymentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var o *models.Order
	var amount int64
	if req.OrderID != "" {
		var err error
		if o, err = h.payableOrder(ctx, req.OrderID); err != nil {
			h.fail(w, r, err)
			return
		}
		amount = o.TotalCents
	}
	intent, err := h.settledIntent(ctx, req.PaymentIntentID, amount, req.OrderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result := map[string]interface{}{
		"payment_intent_id": intent.ID,
		"status":            intent.Status,
	}
	if o == nil {
		respondOK(w, http.StatusOK, "Payment confirmed", result)
		return
	}

	if o.PaymentConfirmed {
		if o.PaymentIntentID != intent.ID {
			h.fail(w, r, badRequest("This order has already been paid"))
			return
		}
		result["order"] = o
		respondOK(w, http.StatusOK, "Payment already confirmed", result)
		return
	}

	o.PaymentConfirmed = true
	o.PaymentIntentID = intent.ID
	o.PaymentMethod = models.PaymentOnline
	enteredProcessing := o.Status == models.StatusReceived
	if enteredProcessing {
		o.Status = models.StatusProcessing
	}
	o.UpdatedAt = h.now().UTC()
	if err := h.store.Orders().Update(ctx, o); err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":          o.ID,
		"payment_intent_id": intent.ID,
	}).Info("Order payment confirmed")
	h.publish(ctx, events.NewOrderEvent(events.OrderPaymentConfirmed, o))
	if enteredProcessing {
		h.publish(ctx, events.NewOrderEvent(events.OrderStatusChanged, o))
		h.sendOrderEmail(ctx, o, models.StatusProcessing)
	}

	result["order"] = o
	respondOK(w, http.StatusOK, "Payment confirmed", result)
}
