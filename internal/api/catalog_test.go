package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/bakery-orders/internal/circuitbreaker"
	"github.com/jogardn/bakery-orders/internal/events"
	"github.com/jogardn/bakery-orders/internal/payment"
	"github.com/jogardn/bakery-orders/pkg/models"
)

func TestProductManagement(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.admin()
	_, customerToken := env.user(models.RoleCustomer, "c@example.com")
	create := map[string]interface{}{"name": "Red velvet", "price_cents": 450, "stock": 12}

	rec, _ := env.do(http.MethodPost, "/api/products", create, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/products", create, customerToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := env.do(http.MethodPost, "/api/products", map[string]interface{}{"name": "Bad", "price_cents": -1}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "price_cents", body.Errors[0].Field)

	rec, body = env.do(http.MethodPost, "/api/products", create, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, body.Message)
	var p models.Product
	decodeData(t, body, &p)
	assert.True(t, p.Available)
	assert.Equal(t, 12, p.Stock)

	rec, body = env.do(http.MethodPut, "/api/products/"+p.ID, map[string]interface{}{"available": false}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, body, &p)
	assert.False(t, p.Available)
	assert.Equal(t, "Red velvet", p.Name, "partial update keeps other fields")

	_, body = env.do(http.MethodGet, "/api/products", nil, "")
	assert.Equal(t, 0, *body.Count, "unavailable products are hidden from the public")
	_, body = env.do(http.MethodGet, "/api/products", nil, adminToken)
	assert.Equal(t, 1, *body.Count)

	rec, _ = env.do(http.MethodPut, "/api/products/"+p.ID, map[string]interface{}{"name": ""}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(http.MethodDelete, "/api/products/"+p.ID, nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = env.do(http.MethodGet, "/api/products/"+p.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = env.do(http.MethodDelete, "/api/products/"+p.ID, nil, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBoxPricing(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.admin()

	rec, body := env.do(http.MethodGet, "/api/pricing/boxes", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view pricingView
	decodeData(t, body, &view)
	assert.Equal(t, int64(3500), view.Price12)
	assert.Equal(t, int64(1500), view.BySize["4"])

	rec, _ = env.do(http.MethodPut, "/api/pricing/boxes", map[string]interface{}{}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(http.MethodPut, "/api/pricing/boxes", map[string]interface{}{"price_6_cents": -5}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = env.do(http.MethodPut, "/api/pricing/boxes", map[string]interface{}{"price_6_cents": 2200}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, body, &view)
	assert.Equal(t, int64(2200), view.Price6)
	assert.Equal(t, int64(1500), view.Price4)

	p := env.product("Cookie", true)
	env.schedule("laval", pickupDate, "10:00")
	_, body = env.do(http.MethodPost, "/api/orders", orderBody(p.ID, pickup(pickupDate, "10:00")), "")
	var o models.Order
	decodeData(t, body, &o)
	assert.Equal(t, int64(2200), o.TotalCents, "orders use the saved price list")
}

func TestReviewModeration(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.admin()
	_, customerToken := env.user(models.RoleCustomer, "fan@example.com")

	rec, body := env.do(http.MethodPost, "/api/reviews", map[string]interface{}{"text": "Délicieux!"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "author_name", body.Errors[0].Field)

	rec, _ = env.do(http.MethodPost, "/api/reviews", map[string]interface{}{"text": "ok", "rating": 6, "author_name": "A"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/reviews", map[string]interface{}{"text": strings.Repeat("a", 1001), "author_name": "A"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/reviews", map[string]interface{}{"text": "ok", "author_name": "A", "product_id": "missing"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/reviews", map[string]interface{}{
		"text": "ok", "author_name": "A", "photos": []string{"a", "b", "c", "d", "e", "f"},
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = env.do(http.MethodPost, "/api/reviews", map[string]interface{}{"text": "Les meilleurs cookies", "rating": 5}, customerToken)
	require.Equal(t, http.StatusCreated, rec.Code, body.Message)
	var rv models.Review
	decodeData(t, body, &rv)
	assert.False(t, rv.Approved)
	assert.Equal(t, "User fan@example.com", rv.AuthorName)
	assert.Contains(t, env.events.types(), events.ReviewSubmitted)

	_, body = env.do(http.MethodGet, "/api/reviews", nil, "")
	assert.Equal(t, 0, *body.Count)
	_, body = env.do(http.MethodGet, "/api/reviews", nil, adminToken)
	assert.Equal(t, 1, *body.Count)

	rec, _ = env.do(http.MethodPut, "/api/reviews/"+rv.ID+"/approve", nil, customerToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = env.do(http.MethodPut, "/api/reviews/"+rv.ID+"/approve", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = env.do(http.MethodGet, "/api/reviews", nil, "")
	assert.Equal(t, 1, *body.Count)

	rec, _ = env.do(http.MethodPut, "/api/reviews/"+rv.ID+"/reply", map[string]string{"text": ""}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, body = env.do(http.MethodPut, "/api/reviews/"+rv.ID+"/reply", map[string]string{"text": "Merci!"}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, body, &rv)
	require.NotNil(t, rv.Reply)
	assert.Equal(t, "Merci!", rv.Reply.Text)

	rec, _ = env.do(http.MethodDelete, "/api/reviews/"+rv.ID, nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = env.do(http.MethodDelete, "/api/reviews/"+rv.ID, nil, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGallery(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.admin()

	rec, _ := env.do(http.MethodPost, "/api/gallery", map[string]interface{}{"title": "No image"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/gallery", map[string]interface{}{"image": strings.Repeat("A", 6<<20)}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := env.do(http.MethodPost, "/api/gallery", map[string]interface{}{"image": "data:image/png;base64,AAAA", "title": "Vitrine", "position": 1}, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	var photo models.GalleryPhoto
	decodeData(t, body, &photo)

	_, body = env.do(http.MethodGet, "/api/gallery", nil, "")
	assert.Equal(t, 1, *body.Count)

	rec, _ = env.do(http.MethodDelete, "/api/gallery/"+photo.ID, nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = env.do(http.MethodGet, "/api/gallery", nil, "")
	assert.Equal(t, 0, *body.Count)
}

func TestPickupSchedules(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.admin()

	rec, _ := env.do(http.MethodPost, "/api/pickup-schedules", map[string]interface{}{
		"location": "laval", "date": pickupDate, "times": []string{"25:00"},
	}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/pickup-schedules", map[string]interface{}{
		"location": "quebec", "date": pickupDate, "times": []string{"10:00"},
	}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/pickup-schedules", map[string]interface{}{
		"location": "laval", "date": pickupDate, "times": []string{},
	}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := env.do(http.MethodPost, "/api/pickup-schedules", map[string]interface{}{
		"location": "Laval", "date": pickupDate, "times": []string{"14:00", "10:00", "10:00"},
	}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, body.Message)
	var first models.PickupSchedule
	decodeData(t, body, &first)
	assert.Equal(t, []string{"10:00", "14:00"}, first.Times)

	_, body = env.do(http.MethodPost, "/api/pickup-schedules", map[string]interface{}{
		"location": "laval", "date": pickupDate, "times": []string{"09:00"},
	}, adminToken)
	var second models.PickupSchedule
	decodeData(t, body, &second)
	assert.Equal(t, first.ID, second.ID, "same location and date is replaced")

	env.schedule("laval", "2025-03-01", "10:00")

	rec, body = env.do(http.MethodGet, "/api/pickup-schedules/dates?location=laval", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dates []string
	decodeData(t, body, &dates)
	assert.Equal(t, []string{pickupDate}, dates, "past dates are not offered")

	rec, _ = env.do(http.MethodGet, "/api/pickup-schedules/dates", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, body = env.do(http.MethodGet, "/api/pickup-schedules?location=laval&date="+pickupDate, nil, "")
	var slot pickupTimes
	decodeData(t, body, &slot)
	assert.Equal(t, []string{"09:00"}, slot.Times)

	rec, body = env.do(http.MethodGet, "/api/pickup-schedules?location=laval&date=2025-04-01", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, body, &slot)
	assert.Empty(t, slot.Times)
	assert.NotNil(t, slot.Times)

	rec, body = env.do(http.MethodGet, "/api/pickup-schedules/all", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, *body.Count)

	rec, _ = env.do(http.MethodDelete, "/api/pickup-schedules/"+first.ID, nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = env.do(http.MethodDelete, "/api/pickup-schedules/"+first.ID, nil, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayments(t *testing.T) {
	env := newTestEnv(t)
	p := env.product("Cookie", true)

	_, body := env.do(http.MethodPost, "/api/orders", orderBody(p.ID, delivery(pickupDate, "12:00")), "")
	var o models.Order
	decodeData(t, body, &o)

	rec, _ := env.do(http.MethodPost, "/api/payments/create-intent", map[string]interface{}{"order_id": o.ID}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "provider not configured")

	env.payments.configured = true
	rec, _ = env.do(http.MethodPost, "/api/payments/create-intent", map[string]interface{}{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = env.do(http.MethodPost, "/api/payments/create-intent", map[string]interface{}{"order_id": o.ID, "amount_cents": 1}, "")
	require.Equal(t, http.StatusOK, rec.Code, body.Message)
	var intent intentView
	decodeData(t, body, &intent)
	assert.Equal(t, o.TotalCents, intent.AmountCents, "amount comes from the order")
	assert.NotEmpty(t, intent.ClientSecret)

	rec, body = env.do(http.MethodPost, "/api/payments/confirm", map[string]string{"payment_intent_id": intent.PaymentIntentID, "order_id": o.ID}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body.Message, "requires_payment_method")

	rec, _ = env.do(http.MethodPost, "/api/payments/confirm", map[string]string{"payment_intent_id": "pi_missing"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.payments.intents[intent.PaymentIntentID].Status = payment.StatusSucceeded
	for i := 0; i < 2; i++ {
		rec, body = env.do(http.MethodPost, "/api/payments/confirm", map[string]string{"payment_intent_id": intent.PaymentIntentID, "order_id": o.ID}, "")
		require.Equal(t, http.StatusOK, rec.Code, body.Message)
	}
	assert.Equal(t, []string{"confirmation"}, env.notifier.kinds(), "confirmation is sent once")

	rec, body = env.do(http.MethodGet, "/api/orders/"+o.ID, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, adminToken := env.admin()
	_, body = env.do(http.MethodGet, "/api/orders/"+o.ID, nil, adminToken)
	decodeData(t, body, &o)
	assert.True(t, o.PaymentConfirmed)
	assert.Equal(t, models.StatusProcessing, o.Status)
	assert.Equal(t, models.PaymentOnline, o.PaymentMethod)

	rec, _ = env.do(http.MethodPost, "/api/payments/create-intent", map[string]interface{}{"order_id": o.ID}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "paid orders cannot be charged twice")
}

func TestConfirmPaymentRejectsForeignIntent(t *testing.T) {
	env := newTestEnv(t)
	env.payments.configured = true
	p := env.product("Cookie", true)

	place := func() models.Order {
		_, body := env.do(http.MethodPost, "/api/orders", orderBody(p.ID, delivery(pickupDate, "12:00")), "")
		var o models.Order
		decodeData(t, body, &o)
		return o
	}
	first, second := place(), place()

	_, body := env.do(http.MethodPost, "/api/payments/create-intent", map[string]string{"order_id": first.ID}, "")
	var intent intentView
	decodeData(t, body, &intent)
	env.payments.intents[intent.PaymentIntentID].Status = payment.StatusSucceeded

	rec, body := env.do(http.MethodPost, "/api/payments/confirm", map[string]string{"payment_intent_id": intent.PaymentIntentID, "order_id": second.ID}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Payment already used", body.Message)

	// An intent created before its order exists is still bound by the first
	// order that claims it.
	env.payments.intents["pi_loose"] = &payment.Intent{
		ID: "pi_loose", Amount: 5000, Currency: "cad", Status: payment.StatusSucceeded,
		Metadata: map[string]string{"order_id": payment.PendingOrder},
	}
	rec, _ = env.do(http.MethodPost, "/api/payments/confirm", map[string]string{"payment_intent_id": "pi_loose", "order_id": first.ID}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = env.do(http.MethodPost, "/api/payments/confirm", map[string]string{"payment_intent_id": "pi_loose", "order_id": second.ID}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Payment already used", body.Message)

	rec, body = env.do(http.MethodPost, "/api/payments/confirm", map[string]string{"payment_intent_id": intent.PaymentIntentID, "order_id": first.ID}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "This order has already been paid", body.Message)

	stored, err := env.store.Orders().Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.False(t, stored.PaymentConfirmed)
	assert.Equal(t, []string{"confirmation"}, env.notifier.kinds())
}

func TestConfirmPaymentRejectsOtherCurrency(t *testing.T) {
	env := newTestEnv(t)
	env.payments.configured = true
	env.payments.intents["pi_usd"] = &payment.Intent{ID: "pi_usd", Amount: 5000, Currency: "usd", Status: payment.StatusSucceeded}

	rec, body := env.do(http.MethodPost, "/api/payments/confirm", map[string]string{"payment_intent_id": "pi_usd"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `Payment currency "usd" does not match "cad"`, body.Message)
}

func TestPaymentsForOtherUsersOrder(t *testing.T) {
	env := newTestEnv(t)
	env.payments.configured = true
	p := env.product("Cookie", true)
	_, aliceToken := env.user(models.RoleCustomer, "alice@example.com")
	_, bobToken := env.user(models.RoleCustomer, "bob@example.com")

	req := orderBody(p.ID, delivery(pickupDate, "12:00"))
	delete(req, "guest")
	_, body := env.do(http.MethodPost, "/api/orders", req, aliceToken)
	var o models.Order
	decodeData(t, body, &o)

	rec, _ := env.do(http.MethodPost, "/api/payments/create-intent", map[string]string{"order_id": o.ID}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/payments/create-intent", map[string]string{"order_id": o.ID}, bobToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/payments/create-intent", map[string]string{"order_id": o.ID}, aliceToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProvidersAndLiveFeedAuth(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.admin()
	_, customerToken := env.user(models.RoleCustomer, "c@example.com")

	rec, body := env.do(http.MethodGet, "/api/admin/providers", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var data map[string]interface{}
	decodeData(t, body, &data)
	assert.Equal(t, "fake", data["email_provider"])
	assert.Equal(t, false, data["captcha_enabled"])

	rec, _ = env.do(http.MethodGet, "/api/admin/providers", nil, customerToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = env.do(http.MethodGet, "/api/admin/live", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no live feed wired in tests")
}

func TestResetProviderBreaker(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.admin()
	_, customerToken := env.user(models.RoleCustomer, "c@example.com")

	cb := env.breakers.GetOrCreate("payment", circuitbreaker.Config{MaxFailures: 1, Timeout: 5 * time.Minute})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("provider down") })
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	rec, _ := env.do(http.MethodPost, "/api/admin/providers/payment/reset", nil, customerToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = env.do(http.MethodPost, "/api/admin/providers/sms/reset", nil, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := env.do(http.MethodPost, "/api/admin/providers/payment/reset", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, body.Message)
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}
