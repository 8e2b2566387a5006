package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/internal/events"
	"github.com/jogardn/bakery-orders/internal/notify"
	"github.com/jogardn/bakery-orders/internal/ordering"
	"github.com/jogardn/bakery-orders/internal/payment"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

type guestRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"omitempty,max=30"`
}

type placeOrderRequest struct {
	Boxes           []models.Box            `json:"boxes"`
	Reception       models.ReceptionDetails `json:"reception"`
	PaymentMethod   models.PaymentMethod    `json:"payment_method"`
	PaymentIntentID string                  `json:"payment_intent_id"`
	Guest           *guestRequest           `json:"guest"`
}

// PlaceOrder accepts orders from customers and anonymous guests. Prices and
// totals are always recomputed here.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req placeOrderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	u := auth.UserFromContext(ctx)
	if u == nil && req.Guest == nil {
		h.fail(w, r, badRequest("Guest name and email are required",
			field("guest.name", "name is required"),
			field("guest.email", "email is required")))
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentOnSite
	}
	if !req.PaymentMethod.Valid() {
		h.fail(w, r, badRequest("Invalid payment method", field("payment_method", "payment_method must be on_site or online")))
		return
	}

	if err := ordering.ValidateBoxes(req.Boxes); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := ordering.ValidateReception(h.shop, req.Reception.Reception); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.checkSlot(ctx, req.Reception.Reception); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.resolveProducts(ctx, req.Boxes); err != nil {
		h.fail(w, r, err)
		return
	}

	pricing, err := h.store.Pricing().Get(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	totals, err := ordering.Quote(pricing, req.Boxes, req.Reception.Reception, h.shop.Surcharge)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.now().UTC()
	o := &models.Order{
		ID:               uuid.NewString(),
		Boxes:            totals.Boxes,
		SubtotalCents:    totals.SubtotalCents,
		DeliveryFeeCents: totals.DeliveryFeeCents,
		TotalCents:       totals.TotalCents,
		Status:           models.StatusReceived,
		Reception:        req.Reception,
		PaymentMethod:    req.PaymentMethod,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if u != nil {
		o.UserID = u.ID
	} else {
		o.Guest = &models.GuestContact{
			Name:  strings.TrimSpace(req.Guest.Name),
			Email: normalizeEmail(req.Guest.Email),
			Phone: strings.TrimSpace(req.Guest.Phone),
		}
	}

	if req.PaymentIntentID != "" {
		intent, err := h.settledIntent(ctx, req.PaymentIntentID, o.TotalCents, o.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		o.PaymentIntentID = intent.ID
		o.PaymentMethod = models.PaymentOnline
		o.PaymentConfirmed = true
		o.Status = models.StatusProcessing
	}

	if err := h.store.Orders().Create(ctx, o); err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_id":    o.ID,
		"user_id":     o.UserID,
		"total_cents": o.TotalCents,
		"boxes":       len(o.Boxes),
		"mode":        o.Reception.Mode(),
	}).Info("Order placed")

	h.publish(ctx, events.NewOrderEvent(events.OrderPlaced, o))
	if o.PaymentConfirmed {
		h.publish(ctx, events.NewOrderEvent(events.OrderPaymentConfirmed, o))
		h.sendOrderEmail(ctx, o, models.StatusProcessing)
	}

	respondOK(w, http.StatusCreated, "Order placed", o)
}

// checkSlot rejects past dates and pickup times no schedule offers.
func (h *Handler) checkSlot(ctx context.Context, rec models.Reception) error {
	date, clock := rec.Slot()
	if date < h.now().Format(ordering.DateLayout) {
		return badRequest("The reception date cannot be in the past", field("reception.date", "date cannot be in the past"))
	}
	pickup, ok := rec.(models.PickupReception)
	if !ok {
		return nil
	}
	schedule, err := h.store.Schedules().Find(ctx, pickup.Location, date)
	if errors.Is(err, store.ErrNotFound) {
		return badRequest("The selected pickup time is not available", field("reception.time", "no pickup offered on this date"))
	}
	if err != nil {
		return err
	}
	if !schedule.Offers(clock) {
		return badRequest("The selected pickup time is not available", field("reception.time", "pickup time not offered"))
	}
	return nil
}

// resolveProducts checks every referenced product can be ordered and
// records its name on the item.
func (h *Handler) resolveProducts(ctx context.Context, boxes []models.Box) error {
	verr := &ordering.ValidationError{}
	cache := make(map[string]*models.Product)
	for i := range boxes {
		for j := range boxes[i].Items {
			item := &boxes[i].Items[j]
			p, seen := cache[item.ProductID]
			if !seen {
				var err error
				p, err = h.store.Products().Get(ctx, item.ProductID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
				cache[item.ProductID] = p
			}
			if p == nil || !p.Orderable() {
				verr.Violations = append(verr.Violations, ordering.Violation{
					Field:   fmt.Sprintf("boxes[%d].items[%d].product_id", i, j),
					Message: fmt.Sprintf("product %q is not available", item.ProductID),
				})
				continue
			}
			item.ProductName = p.Name
		}
	}
	if len(verr.Violations) > 0 {
		return verr
	}
	return nil
}

// settledIntent fetches a payment intent once and checks it paid at least
// amount in the shop currency. An intent created for a specific order may
// only settle that order; orderID is empty when no order is involved.
func (h *Handler) settledIntent(ctx context.Context, id string, amount int64, orderID string) (*payment.Intent, error) {
	if !h.payments.Configured() {
		return nil, internal("Online payment is not available")
	}
	intent, err := h.payments.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !intent.Succeeded() {
		return nil, badRequest(fmt.Sprintf("Payment has not succeeded (status: %s)", intent.Status))
	}
	if !strings.EqualFold(intent.Currency, h.payments.Currency()) {
		return nil, badRequest(fmt.Sprintf("Payment currency %q does not match %q", intent.Currency, h.payments.Currency()))
	}
	if intent.Amount < amount {
		return nil, badRequest("Payment amount does not cover the order total")
	}
	if owner := intent.Metadata["order_id"]; orderID != "" && owner != "" && owner != payment.PendingOrder && owner != orderID {
		return nil, badRequest("Payment already used")
	}
	return intent, nil
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	filter := store.OrderFilter{}
	if !u.Role.Can(models.CapViewAllOrders) {
		filter.UserID = u.ID
	}
	orders, err := h.store.Orders().List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondList(w, orders, len(orders))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	o, err := h.store.Orders().Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		err = notFound("Order not found")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if o.UserID != u.ID && !u.Role.Can(models.CapViewAllOrders) {
		h.fail(w, r, forbidden("You do not have permission to view this order"))
		return
	}
	respondOK(w, http.StatusOK, "", o)
}

// UpdateOrder moves an order forward and/or flags its payment. Emails are
// sent on entering processing and completed.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.OrderUpdate
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Status == nil && req.PaymentConfirmed == nil {
		h.fail(w, r, badRequest("Nothing to update: provide status or payment_confirmed"))
		return
	}

	o, err := h.store.Orders().Get(ctx, mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		err = notFound("Order not found")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	statusChanged := false
	if req.Status != nil {
		statusChanged, err = ordering.Advance(o.Status, *req.Status)
		if err != nil {
			h.fail(w, r, badRequest(capitalize(err.Error()), field("status", err.Error())))
			return
		}
		if statusChanged {
			o.Status = *req.Status
		}
	}
	paymentConfirmed := req.PaymentConfirmed != nil && *req.PaymentConfirmed && !o.PaymentConfirmed
	if req.PaymentConfirmed != nil {
		o.PaymentConfirmed = *req.PaymentConfirmed
	}
	o.UpdatedAt = h.now().UTC()

	if err := h.store.Orders().Update(ctx, o); err != nil {
		h.fail(w, r, err)
		return
	}

	admin := auth.UserFromContext(ctx)
	h.logger.WithFields(logrus.Fields{
		"order_id":          o.ID,
		"user_id":           admin.ID,
		"status":            o.Status,
		"payment_confirmed": o.PaymentConfirmed,
	}).Info("Order updated")

	if statusChanged {
		h.publish(ctx, events.NewOrderEvent(events.OrderStatusChanged, o))
		h.sendOrderEmail(ctx, o, o.Status)
	}
	if paymentConfirmed {
		h.publish(ctx, events.NewOrderEvent(events.OrderPaymentConfirmed, o))
	}
	respondOK(w, http.StatusOK, "Order updated", o)
}

func (h *Handler) publish(ctx context.Context, e events.Event) {
	if err := h.publisher.Publish(ctx, e); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": e.Type,
			"key":        e.Key(),
		}).Error("Failed to publish event")
	}
}

func (h *Handler) recipient(ctx context.Context, o *models.Order) (notify.Recipient, error) {
	if o.Guest != nil {
		return notify.Recipient{Name: o.Guest.Name, Email: o.Guest.Email}, nil
	}
	u, err := h.store.Users().Get(ctx, o.UserID)
	if err != nil {
		return notify.Recipient{}, fmt.Errorf("load order owner: %w", err)
	}
	return notify.Recipient{Name: u.Name, Email: u.Email}, nil
}

// sendOrderEmail sends the email tied to entering status. A failed send
// never undoes the change that triggered it.
func (h *Handler) sendOrderEmail(ctx context.Context, o *models.Order, status models.OrderStatus) {
	var send func(context.Context, notify.Recipient, *models.Order) error
	switch status {
	case models.StatusProcessing:
		send = h.notifier.OrderConfirmation
	case models.StatusCompleted:
		send = h.notifier.OrderCompleted
	default:
		return
	}

	fields := logrus.Fields{
		"order_id": o.ID,
		"status":   status,
		"provider": h.notifier.Provider(),
	}
	to, err := h.recipient(ctx, o)
	if err != nil {
		h.logger.WithError(err).WithFields(fields).Warn("Cannot resolve order email recipient")
		return
	}
	if err := send(ctx, to, o); err != nil {
		h.logger.WithError(err).WithFields(fields).Warn("Failed to send order email")
		return
	}
	h.logger.WithFields(fields).Info("Order email sent")
}
